package matching

import "strings"

// TopicOther is the fallback bucket for markets no keyword claims. Markets
// in it still compare against each other, so an unclassified pair is not
// silently lost.
const TopicOther = "other"

// topicKeywords drives the coarse candidate filter. Buckets bound the
// otherwise quadratic title comparison to within-topic pairs.
var topicKeywords = map[string][]string{
	"politics": {
		"election", "president", "presidential", "senate", "congress",
		"governor", "democrat", "republican", "vote", "nominee", "impeach",
		"primary", "cabinet", "supreme court", "parliament", "prime minister",
	},
	"crypto": {
		"bitcoin", "btc", "ethereum", "eth", "solana", "crypto", "token",
		"stablecoin", "dogecoin", "xrp",
	},
	"economy": {
		"fed", "interest rate", "inflation", "cpi", "gdp", "recession",
		"unemployment", "jobs report", "tariff", "s&p", "nasdaq", "stock",
		"treasury", "debt ceiling",
	},
	"sports": {
		"nfl", "nba", "mlb", "nhl", "super bowl", "world series", "playoff",
		"championship", "world cup", "olympics", "ufc", "grand slam", "f1",
		"premier league",
	},
	"weather": {
		"temperature", "hurricane", "snow", "rainfall", "heat", "tornado",
		"storm", "wildfire", "degrees",
	},
	"entertainment": {
		"oscar", "grammy", "emmy", "box office", "album", "movie", "netflix",
		"spotify", "billboard",
	},
	"science": {
		"spacex", "nasa", "launch", "rocket", "vaccine", "fda", "ai model",
		"openai", "nobel",
	},
}

// TagTopic assigns the first topic whose keyword appears in the market's
// title or event title, scanning topics in a fixed order for determinism.
// Keywords match whole words only: "eth" must not claim "whether" or
// "together", or the two venues' titles land in different buckets and a
// genuine pair is never compared.
func TagTopic(title, eventTitle string) string {
	haystack := " " + tokenize(title+" "+eventTitle) + " "
	for _, topic := range topicOrder {
		for _, kw := range topicKeywords[topic] {
			// A trailing plural still counts: "interest rates", "stocks".
			if strings.Contains(haystack, " "+kw+" ") || strings.Contains(haystack, " "+kw+"s ") {
				return topic
			}
		}
	}
	return TopicOther
}

// tokenize lowercases s and collapses punctuation to single spaces, keeping
// '&' intact so "s&p" survives as one token. Multi-word keywords then match
// as consecutive tokens.
func tokenize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '&':
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// topicOrder fixes the scan order so tagging is deterministic regardless of
// map iteration order.
var topicOrder = []string{
	"politics", "crypto", "economy", "sports", "weather", "entertainment",
	"science",
}
