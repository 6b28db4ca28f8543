package ice

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const runesAlpha = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Seeded at package init, always produces strings of the requested
// length.
func randSeq(n int) string {
	b := make([]byte, n)
	randMu.Lock()
	for i := range b {
		b[i] = runesAlpha[randSource.Intn(len(runesAlpha))]
	}
	randMu.Unlock()
	return string(b)
}

func randUint64() uint64 {
	randMu.Lock()
	defer randMu.Unlock()
	return randSource.Uint64()
}

func generateRandString(prefix, sufix string) (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return prefix + u.String() + sufix, nil
}

func generateCandidateID() (string, error) {
	return generateRandString("candidate:", "")
}

func generateUFrag() string {
	return randSeq(16)
}

func generatePwd() string {
	return randSeq(32)
}
