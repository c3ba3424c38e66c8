package randstr

import (
	"math/rand/v2"
)

const Base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

type Generator struct {
	letterBytes string
}

func New(letterBytes string) *Generator {
	return &Generator{letterBytes: letterBytes}
}

func (g Generator) GenerateRandomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = g.letterBytes[rand.IntN(len(g.letterBytes))]
	}

	return string(b)
}
