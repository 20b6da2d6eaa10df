package scores

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
)

// MunichBase is the sample data set: five central Munich postal codes.
// 80335 has no data.
func MunichBase() map[string]*float64 {
	return map[string]*float64{
		"80331": Float(25),
		"80469": Float(55),
		"80333": Float(85),
		"80538": Float(10),
		"80335": nil,
	}
}

// MockFetcher serves base scores with a deterministic jitter per
// (data source, region, window end). Nil base values stay nil.
type MockFetcher struct {
	Base   map[string]*float64
	Jitter float64
}

// NewMockFetcher returns a fetcher over the Munich sample with ±20 jitter.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{Base: MunichBase(), Jitter: 20}
}

func (m *MockFetcher) Fetch(ctx context.Context, req FetchRequest) ([]RegionScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.Base))
	for id := range m.Base {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]RegionScore, 0, len(ids))
	for _, id := range ids {
		base := m.Base[id]
		if base == nil {
			out = append(out, RegionScore{RegionID: id})
			continue
		}
		v := *base + m.Jitter*unitNoise(req.DataSourceID, id, req.To.Unix())
		v = math.Round(math.Max(0, math.Min(100, v)))
		out = append(out, RegionScore{RegionID: id, Value: Float(v)})
	}
	return out, nil
}

// unitNoise maps its inputs to a stable value in [-1, 1].
func unitNoise(source, region string, at int64) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(region))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatInt(at, 10)))
	return float64(h.Sum64()%2001)/1000 - 1
}
