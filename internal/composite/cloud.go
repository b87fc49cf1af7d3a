package composite

// CloudTest reports whether a mask sample marks the pixel as unusable.
type CloudTest func(sample float64) bool

// NonZeroCloud treats any non-zero mask sample as cloud.
func NonZeroCloud(sample float64) bool {
	return sample != 0
}

// SentinelCloud treats the listed sample values as cloud.
func SentinelCloud(values ...float64) CloudTest {
	set := make(map[float64]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(sample float64) bool {
		_, ok := set[sample]
		return ok
	}
}

// ThematicCloud is the predicate for classified maps that encode clouds in
// the data band: the cloud class, the empty class and everything from the
// no-data threshold upwards are unusable.
func ThematicCloud(cloud, empty, nodata float64) CloudTest {
	return func(sample float64) bool {
		return sample == cloud || sample == empty || sample >= nodata
	}
}
