package model

// LamportTimestamp is the mesh's logical clock: monotone per node,
// advanced whenever a higher value is observed from elsewhere.
type LamportTimestamp uint64

// Observe returns the new clock value after seeing a remote timestamp:
// one greater than the max of the current value and the observed one.
func (l LamportTimestamp) Observe(remote LamportTimestamp) LamportTimestamp {
	if remote >= l {
		return remote + 1
	}
	return l + 1
}
