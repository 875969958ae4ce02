package kraken

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// pickPair returns the entry for the requested pair. Kraken keys results by
// its own pair code (e.g., "XXBTZEUR"), so with a single-pair request the only
// non-"last" key is taken.
func pickPair(result json.RawMessage) (string, json.RawMessage, error) {
	var byPair map[string]json.RawMessage
	if err := json.Unmarshal(result, &byPair); err != nil {
		return "", nil, fmt.Errorf("%w: result: %v", ErrMalformed, err)
	}

	keys := make([]string, 0, len(byPair))
	for k := range byPair {
		if k == "last" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("%w: no pair key in result", ErrMalformed)
	}
	sort.Strings(keys)
	return keys[0], byPair[keys[0]], nil
}

// parseLevels converts [price, volume, timestamp] tuples. Rows shorter than
// two fields are skipped.
func parseLevels(raw [][]json.RawMessage) ([]Level, error) {
	out := make([]Level, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			continue // skip incomplete row
		}
		price, err := rawString(row[0])
		if err != nil {
			return nil, err
		}
		volume, err := rawString(row[1])
		if err != nil {
			return nil, err
		}
		var ts int64
		if len(row) > 2 {
			ts, _ = rawInt(row[2])
		}
		out = append(out, Level{Price: price, Volume: volume, Timestamp: ts})
	}
	return out, nil
}

// parseCandles converts [time, open, high, low, close, vwap, volume, count] rows.
// It skips rows that are incomplete or whose time cannot be read.
func parseCandles(raw [][]json.RawMessage) []Candle {
	out := make([]Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		ts, err := rawInt(row[0])
		if err != nil {
			continue
		}

		var fields [6]string
		ok := true
		for i := range fields {
			s, err := rawString(row[i+1])
			if err != nil {
				ok = false
				break
			}
			fields[i] = s
		}
		if !ok {
			continue
		}

		c := Candle{
			Time:   ts,
			Open:   fields[0],
			High:   fields[1],
			Low:    fields[2],
			Close:  fields[3],
			VWAP:   fields[4],
			Volume: fields[5],
		}
		if len(row) > 7 {
			c.Count, _ = rawInt(row[7])
		}
		out = append(out, c)
	}
	return out
}

// rawString accepts either a JSON string or a JSON number.
func rawString(r json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(r, &n); err != nil {
		return "", fmt.Errorf("%w: %s is not a number", ErrMalformed, string(r))
	}
	return n.String(), nil
}

func rawInt(r json.RawMessage) (int64, error) {
	s, err := rawString(r)
	if err != nil {
		return 0, err
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMalformed, s)
	}
	return int64(f), nil
}
