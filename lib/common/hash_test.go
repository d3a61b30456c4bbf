// Copyright 2021 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const randomHashString = "0x580d77a9136035a0bc3c3cd86286172f7f81291164c5914266073a30466fba21"

func Test_HexToHash(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		in         string
		hash       Hash
		errWrapped error
	}{
		"full_length": {
			in:   randomHashString,
			hash: MustHexToHash(randomHashString),
		},
		"short_is_right_aligned": {
			in:   "0x0102",
			hash: Hash{30: 0x01, 31: 0x02},
		},
		"odd_length": {
			in:   "0x1",
			hash: Hash{31: 0x01},
		},
		"empty_after_prefix": {
			in: "0x",
		},
		"no_prefix": {
			in:         "abcd",
			errWrapped: ErrNoPrefix,
		},
		"too_short_for_prefix": {
			in:         "0",
			errWrapped: ErrNoPrefix,
		},
		"invalid_hex": {
			in:         "0xzz",
			errWrapped: ErrInvalidHexStr,
		},
		"too_long": {
			in:         randomHashString + "00",
			errWrapped: ErrHashTooLong,
		},
	}

	for name, testCase := range testCases {
		testCase := testCase
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			hash, err := HexToHash(testCase.in)

			require.ErrorIs(t, err, testCase.errWrapped)
			assert.Equal(t, testCase.hash, hash)
		})
	}
}

func Test_Hash_String(t *testing.T) {
	t.Parallel()

	hash := MustHexToHash(randomHashString)
	assert.Equal(t, randomHashString, hash.String())
	assert.Equal(t, "0x580d77a9...466fba21", hash.Short())
	assert.False(t, hash.IsEmpty())
	assert.True(t, EmptyHash.IsEmpty())
}

func Test_Hash_TextRoundTrip(t *testing.T) {
	t.Parallel()

	hash := RepeatByteHash(0xab)
	text, err := hash.MarshalText()
	require.NoError(t, err)

	var decoded Hash
	err = decoded.UnmarshalText(text)
	require.NoError(t, err)
	assert.Equal(t, hash, decoded)
}

func Test_MustHexToHash_panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { MustHexToHash("nope") })
}

func Test_HashValidator(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", HashValidator(reflect.ValueOf(EmptyHash)))
	assert.Equal(t, "", HashValidator(reflect.ValueOf("not a hash")))
	hash := RepeatByteHash(1)
	assert.Equal(t, hash.String(), HashValidator(reflect.ValueOf(hash)))
}
