package bes

import (
	"math/rand"
	"testing"
)

func TestImplicantEncode(t *testing.T) {
	// (1,*,0) over 3 variables: fixed-to-0 mask 001, fixed-to-1 mask 100.
	im := NewImplicant(0x4, 3)
	im.setStar(1)
	if im.String() != "1*0" {
		t.Fatalf("implicant is %s instead of 1*0", im)
	}
	if im.Encode() != 12 {
		t.Errorf("encode(1*0) = %d instead of 12", im.Encode())
	}
	decoded := DecodeImplicant(12, 3)
	if !decoded.equal(im) {
		t.Errorf("decode(12) = %s instead of %s", decoded, im)
	}
}

func TestImplicantRoundTrip(t *testing.T) {
	// Every implicant over 3 variables.
	var walk func(im *Implicant, i int)
	walk = func(im *Implicant, i int) {
		if i == 3 {
			decoded := DecodeImplicant(im.Encode(), 3)
			if !decoded.equal(im) {
				t.Errorf("decode(encode(%s)) = %s", im, decoded)
			}
			return
		}
		for _, v := range []int8{0, 1, star} {
			c := im.clone()
			if v == star {
				c.setStar(i)
			} else {
				c.value[i] = v
			}
			walk(c, i+1)
		}
	}
	walk(NewImplicant(0, 3), 0)
}

func TestImplicantCovers(t *testing.T) {
	im := DecodeImplicant(12, 3) // 1*0
	expected := map[uint32]bool{4: true, 6: true}
	for x := uint32(0); x < 8; x++ {
		if im.Covers(x) != expected[x] {
			t.Errorf("1*0 covers %d = %v", x, im.Covers(x))
		}
	}
}

func TestCombineImplicants(t *testing.T) {
	a := NewImplicant(0x0, 2) // 00
	b := NewImplicant(0x1, 2) // 01
	c := combineImplicants(a, b)
	if c == nil || c.String() != "0*" {
		t.Fatalf("00+01 = %v instead of 0*", c)
	}
	if combineImplicants(a, NewImplicant(0x3, 2)) != nil {
		t.Errorf("00+11 should not combine")
	}
	d := NewImplicant(0x2, 2) // 10
	d.setStar(1)              // 1*
	if combineImplicants(c, d) == nil {
		t.Errorf("0*+1* should combine into **")
	}
	if combineImplicants(c, NewImplicant(0x2, 2)) != nil {
		t.Errorf("0*+10 should not combine: star patterns differ")
	}
}

func TestPrimeImplicants(t *testing.T) {
	// f over 2 variables with on-set {0,1,3}: primes 0* and *1.
	primes := primeImplicants([]int8{1, 1, 0, 1})
	if len(primes) != 2 {
		t.Fatalf("primes = %v", primes)
	}
	found := map[string]bool{}
	for _, im := range primes {
		found[im.String()] = true
	}
	if !found["0*"] || !found["*1"] {
		t.Errorf("primes = %v instead of {0*, *1}", primes)
	}
}

func TestPrimeImplicantsAllOnes(t *testing.T) {
	primes := primeImplicants([]int8{1, 1, 1, 1, 1, 1, 1, 1})
	if len(primes) != 1 || primes[0].String() != "***" {
		t.Errorf("primes of the constant-1 table = %v", primes)
	}
}

// The classic four-variable textbook example: on-set
// {4,8,9,10,11,12,14,15} has prime implicants m(4,12)=*100,
// m(8,9,10,11)=10**, m(8,10,12,14)=1**0, m(10,11,14,15)=1*1*.
func TestPrimeImplicantsTextbook(t *testing.T) {
	tt := make([]int8, 16)
	for _, x := range []int{4, 8, 9, 10, 11, 12, 14, 15} {
		tt[x] = 1
	}
	primes := primeImplicants(tt)
	found := map[string]bool{}
	for _, im := range primes {
		found[im.String()] = true
	}
	for _, expected := range []string{"*100", "10**", "1**0", "1*1*"} {
		if !found[expected] {
			t.Errorf("prime %s missing from %v", expected, primes)
		}
	}
	if len(primes) != 4 {
		t.Errorf("%d primes instead of 4: %v", len(primes), primes)
	}
}

func TestImplicantChartRejectsBadImplicant(t *testing.T) {
	im := DecodeImplicant(0, 2) // ** covers everything
	if _, err := implicantChart([]*Implicant{im},
		[]int8{1, 0, 1, 1}); err == nil {
		t.Errorf("chart should reject an implicant covering the off-set")
	}
}

// The selected cover must cover every on-set input and is checked by
// the chart never to touch the off-set.
func testCoverFeasible(nbUsers uint32, revoked []uint32, t *testing.T) {
	tt := make([]int8, nbUsers)
	for i := range tt {
		tt[i] = 1
	}
	for _, r := range revoked {
		tt[r] = 0
	}
	primes := primeImplicants(tt)
	chart, err := implicantChart(primes, tt)
	if err != nil {
		t.Fatalf("implicantChart: %v", err)
	}
	cover := minimalCover(primes, chart)

	for x := uint32(0); x < nbUsers; x++ {
		covered := false
		for _, im := range cover {
			if im.Covers(x) {
				covered = true
				break
			}
		}
		if covered == (tt[x] == 0) {
			t.Errorf("N=%d: input %d covered=%v, authorized=%v",
				nbUsers, x, covered, tt[x] == 1)
		}
	}
}

func TestCoverFeasible(t *testing.T) {
	testCoverFeasible(8, []uint32{5}, t)
	testCoverFeasible(128, []uint32{9, 11, 12, 26, 28, 54}, t)

	rng := rand.New(rand.NewSource(41))
	for _, nbUsers := range []uint32{4, 16, 64} {
		for round := 0; round < 20; round++ {
			var revoked []uint32
			for user := uint32(0); user < nbUsers; user++ {
				if rng.Intn(3) == 0 {
					revoked = append(revoked, user)
				}
			}
			if uint32(len(revoked)) == nbUsers {
				revoked = revoked[1:]
			}
			testCoverFeasible(nbUsers, revoked, t)
		}
	}
}

// A given revocation set always yields the same cover.
func TestCoverDeterministic(t *testing.T) {
	tt := make([]int8, 64)
	for i := range tt {
		tt[i] = 1
	}
	for _, r := range []int{3, 17, 22, 40, 41} {
		tt[r] = 0
	}
	var last []*Implicant
	for round := 0; round < 3; round++ {
		primes := primeImplicants(tt)
		chart, err := implicantChart(primes, tt)
		if err != nil {
			t.Fatalf("implicantChart: %v", err)
		}
		cover := minimalCover(primes, chart)
		if last != nil {
			if len(cover) != len(last) {
				t.Fatalf("cover size changed between runs")
			}
			for k := range cover {
				if !cover[k].equal(last[k]) {
					t.Errorf("cover changed between runs")
				}
			}
		}
		last = cover
	}
}
