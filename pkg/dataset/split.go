package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	TestRatioDefault = 0.2
	SeedDefault      = 42
)

// Split shuffles records with seed and holds out ceil(ratio*n) of them.
// Each record lands in exactly one side. At least one record stays in train.
func Split(records []*Record, ratio float64, seed int64) (train, test []*Record, err error) {
	if ratio < 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in [0, 1), got %v", ratio)
	}
	n := len(records)
	if n == 0 {
		return nil, nil, fmt.Errorf("no records to split")
	}

	testN := int(math.Ceil(ratio * float64(n)))
	if testN >= n {
		testN = n - 1
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = make([]*Record, 0, testN)
	train = make([]*Record, 0, n-testN)
	for k, i := range perm {
		if k < testN {
			test = append(test, records[i])
		} else {
			train = append(train, records[i])
		}
	}
	return train, test, nil
}
