package materials

import (
	"regexp"
	"strconv"
	"strings"
)

// Guess is a best-effort reading of a free-text material name. It is a hint
// for catalog staff and is never applied to materials or recipes.
type Guess struct {
	Kind   Kind
	SizeMl int
	Known  bool
}

var sizeRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*ml\b`)

var kindWords = []struct {
	kind  Kind
	words []string
}{
	{KindBottle, []string{"frasco", "vidro", "bottle", "atomizador"}},
	{KindLabel, []string{"etiqueta", "rotulo", "rótulo", "label", "adesivo"}},
	{KindBox, []string{"caixa", "embalagem", "box", "saquinho", "envelope"}},
	{KindLiquid, []string{"perfume", "essencia", "essência", "edp", "edt", "parfum", "liquido", "líquido"}},
}

func Classify(name string) Guess {
	n := strings.ToLower(strings.TrimSpace(name))
	var g Guess
	for _, kw := range kindWords {
		for _, w := range kw.words {
			if strings.Contains(n, w) {
				g.Kind = kw.kind
				g.Known = true
				break
			}
		}
		if g.Known {
			break
		}
	}
	if m := sizeRe.FindStringSubmatch(n); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil && v > 0 && v == float64(int(v)) {
			g.SizeMl = int(v)
		}
	}
	if !g.Known {
		g.Kind = KindOther
	}
	return g
}
