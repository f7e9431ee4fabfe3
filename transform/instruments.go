package transform

import (
	"hash/fnv"
	"math/rand"
)

// clientSeed derives a per-client RNG seed from the run seed and a pinned
// FNV-1a hash of the client id. The hash must stay byte-stable across
// platforms and releases so reruns with the same seed reproduce the same
// instrument pools.
func clientSeed(seed int64, clientID string) int64 {
	h := fnv.New32a()
	h.Write([]byte(clientID))
	return seed + int64(h.Sum32()%(1<<31))
}

// assignInstrumentPools gives each client a fixed pool of 1-3 instruments
// drawn without replacement from the configured list. The pool depends only
// on (seed, client id), mimicking an account trading a habitual set of
// instruments.
func assignInstrumentPools(clientIDs []string, instruments []string, seed int64) map[string][]string {
	pools := make(map[string][]string, len(clientIDs))
	for _, clientID := range clientIDs {
		rng := rand.New(rand.NewSource(clientSeed(seed, clientID)))
		size := 1 + rng.Intn(3)
		if size > len(instruments) {
			size = len(instruments)
		}
		perm := rng.Perm(len(instruments))
		pool := make([]string, size)
		for i := 0; i < size; i++ {
			pool[i] = instruments[perm[i]]
		}
		pools[clientID] = pool
	}
	return pools
}
