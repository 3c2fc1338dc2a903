package snapshot

import (
	"os"
	"sort"
	"strconv"
	"strings"
)

// Prune removes all but the keep highest-tick archives in dir and returns
// the paths it removed. keep <= 0 disables pruning. Files that do not match
// the <tick>.snap.zst convention are left alone.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	ticks := make([]uint64, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, tick)
	}
	if len(ticks) <= keep {
		return nil, nil
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] > ticks[j] })

	var removed []string
	for _, tick := range ticks[keep:] {
		path := Path(dir, tick)
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}
