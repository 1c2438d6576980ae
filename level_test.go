package main

import "testing"

func TestLevelForXP(t *testing.T) {
	cases := []struct {
		xp    int
		level int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{199, 1},
		{200, 2},
		{1050, 10},
		{-5, 0},
	}
	for _, c := range cases {
		if got := LevelForXP(c.xp); got != c.level {
			t.Errorf("LevelForXP(%d) = %d, want %d", c.xp, got, c.level)
		}
	}
}

func TestNextLevelXP(t *testing.T) {
	cases := []struct {
		level int
		xp    int
	}{
		{0, 100},
		{1, 200},
		{10, 1100},
	}
	for _, c := range cases {
		if got := NextLevelXP(c.level); got != c.xp {
			t.Errorf("NextLevelXP(%d) = %d, want %d", c.level, got, c.xp)
		}
	}
}

func TestXPAmountRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		n := xpAmount()
		if n < 5 || n > 14 {
			t.Fatalf("xpAmount() = %d, outside [5, 14]", n)
		}
	}
}
