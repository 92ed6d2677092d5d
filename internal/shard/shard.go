// Package shard maps room names onto the numbered backend hosts that serve them.
package shard

import (
	"strconv"
	"strings"
)

// DefaultDomain is the service domain appended to every shard host name.
const DefaultDomain = "chatango.com"

// fallbackDivisor is parsed when a room name is too short to supply characters 6..8.
const fallbackDivisor = "rs"

// Weight is one entry of the shard weight table.
type Weight struct {
	Shard  int
	Weight int
}

// Specials pins historically high-traffic rooms to fixed shards.
var Specials = map[string]int{
	"mitvcanal": 56, "animeultimacom": 34, "cricket365live": 21, "pokemonepisodeorg": 22,
	"animelinkz": 20, "sport24lt": 56, "narutowire": 10, "watchanimeonn": 22,
	"cricvid-hitcric-": 51, "narutochatt": 70, "leeplarp": 27, "stream2watch3": 56,
	"ttvsports": 56, "ver-anime": 8, "vipstand": 21, "eafangames": 56,
	"soccerjumbo": 21, "myfoxdfw": 67, "kiiiikiii": 21, "de-livechat": 5,
	"rgsmotrisport": 51, "dbzepisodeorg": 10, "watch-dragonball": 8, "peliculas-flv": 69,
	"tvanimefreak": 54, "tvtvanimefreak": 54,
}

// Weights is the relative load each shard accepts.
var Weights = []Weight{
	{5, 75}, {6, 75}, {7, 75}, {8, 75}, {16, 75}, {17, 75}, {18, 75},
	{9, 95}, {11, 95}, {12, 95}, {13, 95}, {14, 95}, {15, 95},
	{19, 110}, {23, 110}, {24, 110}, {25, 110}, {26, 110},
	{28, 104}, {29, 104}, {30, 104}, {31, 104}, {32, 104}, {33, 104},
	{35, 101}, {36, 101}, {37, 101}, {38, 101}, {39, 101}, {40, 101}, {41, 101},
	{42, 101}, {43, 101}, {44, 101}, {45, 101}, {46, 101}, {47, 101}, {48, 101},
	{49, 101}, {50, 101},
	{52, 110}, {53, 110}, {55, 110}, {57, 110}, {58, 110}, {59, 110}, {60, 110},
	{61, 110}, {62, 110}, {63, 110}, {64, 110}, {65, 110}, {66, 110},
	{68, 95},
	{71, 116}, {72, 116}, {73, 116}, {74, 116}, {75, 116}, {76, 116}, {77, 116},
	{78, 116}, {79, 116}, {80, 116}, {81, 116}, {82, 116}, {83, 116}, {84, 116},
}

type bucket struct {
	upper float64
	shard int
}

// Selector resolves shards from a fixed weight table.
// A Selector is immutable after construction and safe for concurrent use.
type Selector struct {
	specials map[string]int
	buckets  []bucket
	domain   string
}

// New builds a Selector from an override table and a weight table.
// The weights are converted to a cumulative frequency table normalised to 1.0.
func New(specials map[string]int, weights []Weight, domain string) *Selector {
	if domain == "" {
		domain = DefaultDomain
	}

	total := 0
	for _, w := range weights {
		total += w.Weight
	}

	buckets := make([]bucket, 0, len(weights))
	cum := 0.0
	for _, w := range weights {
		cum += float64(w.Weight) / float64(total)
		buckets = append(buckets, bucket{upper: cum, shard: w.Shard})
	}

	return &Selector{specials: specials, buckets: buckets, domain: domain}
}

// Default returns a Selector over the built-in tables.
func Default() *Selector {
	return New(Specials, Weights, DefaultDomain)
}

// Number returns the shard number serving room.
func (s *Selector) Number(room string) int {
	if n, ok := s.specials[room]; ok {
		return n
	}

	x := position(room)
	for _, b := range s.buckets {
		if x <= b.upper {
			return b.shard
		}
	}
	// Only reachable through float rounding at the very top of the table.
	return s.buckets[len(s.buckets)-1].shard
}

// Host returns the host name of the shard serving room.
func (s *Selector) Host(room string) string {
	return "s" + strconv.Itoa(s.Number(room)) + "." + s.domain
}

// position maps a room name to a value in [0,1).
func position(room string) float64 {
	name := strings.NewReplacer("_", "q", "-", "q").Replace(room)

	head := name
	if len(head) > 5 {
		head = head[:5]
	}
	tail := ""
	if len(name) > 6 {
		tail = name[6:min(len(name), 9)]
	}
	if tail == "" {
		tail = fallbackDivisor
	}

	a, err := strconv.ParseInt(head, 36, 64)
	if err != nil {
		return 0
	}
	b, err := strconv.ParseInt(tail, 36, 64)
	if err != nil || b == 0 {
		return 0
	}
	return float64(a%b) / float64(b)
}
