package narrative

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultPrompt seeds the synthesizer when the request carries no prompt.
const DefaultPrompt = "A quiet village at dusk."

const closing = "In time, the scene settles into a new quiet, one shaped by the small acts that came before."

var (
	moods      = []string{"gently", "ominously", "brightly", "softly", "curiously"}
	settings   = []string{"a coastal town", "an overgrown forest", "a bustling market", "an abandoned manor", "a hidden valley"}
	characters = []string{"an old storyteller", "a curious child", "a weary traveler", "a lonely artist", "a clever fox"}
	events     = []string{"finds an unexpected map", "uncovers a faded photograph", "hears a distant melody", "chases a flicker of light", "stumbles on a secret door"}
)

// windowSize is the number of hex characters consumed per pick.
const windowSize = 6

// windowsPerBlock is how many whole windows fit in one 40-char SHA-1 hex digest.
const windowsPerBlock = sha1.Size * 2 / windowSize

// digest yields disjoint 6-hex-character windows derived from a prompt.
// Block 0 is sha1(prompt); block n > 0 is sha1(prompt + ":" + n).
type digest struct {
	prompt string
	blocks []string
}

func (d *digest) window(n int) uint64 {
	block, offset := n/windowsPerBlock, (n%windowsPerBlock)*windowSize
	for len(d.blocks) <= block {
		seed := d.prompt
		if i := len(d.blocks); i > 0 {
			seed += ":" + strconv.Itoa(i)
		}
		sum := sha1.Sum([]byte(seed))
		d.blocks = append(d.blocks, hex.EncodeToString(sum[:]))
	}
	v, _ := strconv.ParseUint(d.blocks[block][offset:offset+windowSize], 16, 32)
	return v
}

func (d *digest) pick(pool []string, n int) string {
	return pool[d.window(n)%uint64(len(pool))]
}

// Synthesize builds a deterministic multi-paragraph narrative from prompt.
// Equal inputs always produce byte-identical output.
func Synthesize(prompt string, paragraphs int) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if paragraphs < 1 {
		paragraphs = 1
	}

	d := &digest{prompt: prompt}
	mood := d.pick(moods, 0)
	setting := d.pick(settings, 1)
	character := capitalize(d.pick(characters, 2))
	event := d.pick(events, 3)

	out := make([]string, 0, paragraphs+1)
	out = append(out, prompt+" "+character+" "+mood+" notices the surroundings of "+setting+" and "+event+".")

	for i := 1; i < paragraphs; i++ {
		act := d.pick(events, 2+2*i)
		detail := d.pick(settings, 3+2*i)
		out = append(out, character+" "+act+" near "+detail+
			". Small, vivid moments unfurl: light, memory, and a choice to be made.")
	}
	out = append(out, closing)

	return strings.Join(out, "\n\n")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
