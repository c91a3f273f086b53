package finalize

// ValidatePicks keeps the first occurrence of every index within
// [1, previewLen], preserving request order, and truncates to targetCount.
func ValidatePicks(requested []int, previewLen, targetCount int) []int {
	seen := make(map[int]struct{}, len(requested))
	out := make([]int, 0, len(requested))
	for _, idx := range requested {
		if idx < 1 || idx > previewLen {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
		if targetCount > 0 && len(out) == targetCount {
			break
		}
	}
	return out
}
