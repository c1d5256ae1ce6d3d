// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package util

import (
	"sync"
	"testing"
)

func TestParallelFor(t *testing.T) {
	for _, threads := range []int{0, 1, 3, 8, 100} {
		n := 1000
		hits := make([]int, n)
		var mu sync.Mutex
		tids := make(map[int]struct{})
		ParallelFor(threads, n, func(i, tid int) {
			hits[i]++
			mu.Lock()
			tids[tid] = struct{}{}
			mu.Unlock()
		})
		for i, h := range hits {
			if h != 1 {
				t.Errorf("threads %d: item %d visited %d times", threads, i, h)
				break
			}
		}
		max := threads
		if max < 1 {
			max = 1
		}
		for tid := range tids {
			if tid < 0 || tid >= max {
				t.Errorf("threads %d: invalid worker id %d", threads, tid)
			}
		}
	}

	ParallelFor(4, 0, func(i, tid int) {
		t.Errorf("should not be called")
	})
}

func TestHash64(t *testing.T) {
	if Hash64(1) == Hash64(2) {
		t.Errorf("hash collision for tiny keys")
	}
	if Hash64(12345) != Hash64(12345) {
		t.Errorf("hash is not deterministic")
	}
}

func TestReverseBytes(t *testing.T) {
	s := []byte("ACGTN")
	ReverseBytes(s)
	if string(s) != "NTGCA" {
		t.Errorf("unexpected result: %s", s)
	}
}
