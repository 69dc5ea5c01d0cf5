package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCPUSpeed(t *testing.T) {
	for _, tc := range []struct {
		in   string
		i, f uint8
		err  bool
	}{
		{in: "3.20", i: 3, f: 20},
		{in: "3.2", i: 3, f: 20},
		{in: "2", i: 2, f: 0},
		{in: "2.05", i: 2, f: 5},
		{in: "x.10", err: true},
		{in: "1.234", err: true},
		{in: "300.0", err: true},
	} {
		i, f, err := parseCPUSpeed(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
			continue
		}
		assert.NoError(t, err, tc.in)
		assert.Equal(t, tc.i, i, tc.in)
		assert.Equal(t, tc.f, f, tc.in)
	}
}

func TestGetenvUint16(t *testing.T) {
	t.Setenv("QUICKPLAY_TEST_VALUE", "7")
	assert.Equal(t, uint16(7), getenvUint16("QUICKPLAY_TEST_VALUE", 3))

	t.Setenv("QUICKPLAY_TEST_VALUE", "seven")
	assert.Equal(t, uint16(3), getenvUint16("QUICKPLAY_TEST_VALUE", 3))

	t.Setenv("QUICKPLAY_TEST_VALUE", "")
	assert.Equal(t, uint16(3), getenvUint16("QUICKPLAY_TEST_VALUE", 3))
}
