package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnswerChoice(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int
		ok   bool
	}{
		{1.0, 1, true},
		{5.9, 5, true},
		{"2", 2, true},
		{" 4 ", 4, true},
		{0.0, 0, false},
		{6.0, 0, false},
		{-1.0, 0, false},
		{"x", 0, false},
		{"NaN", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{[]interface{}{1}, 0, false},
	}
	for _, tt := range tests {
		got, ok := AnswerChoice(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestSectionKey(t *testing.T) {
	key := &SectionKey{Answers: map[int]int{1: 3, 2: 4}, PCorrect: map[int]float64{2: 61.5}}

	a, ok := key.Answer(1)
	assert.True(t, ok)
	assert.Equal(t, 3, a)
	_, ok = key.Answer(3)
	assert.False(t, ok)
	assert.Equal(t, 2, key.KeyedCount())
	assert.Nil(t, key.PCorrectFor(1))
	assert.Equal(t, 61.5, *key.PCorrectFor(2))

	var missing *SectionKey
	assert.Equal(t, 0, missing.KeyedCount())
	_, ok = missing.Answer(1)
	assert.False(t, ok)
}
