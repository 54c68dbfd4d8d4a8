package common

// RouteHint tells the router where a request wants to go. The zero value
// means "any ready connection".
type RouteHint struct {
	// Node routes to exactly this node identity. Takes precedence over Key.
	Node string
	// Key derives the target node from the key's slot.
	Key string
}

// HintToNode creates a hint routing to an explicit node.
func HintToNode(node string) RouteHint {
	return RouteHint{Node: node}
}

// HintByKey creates a hint routing by the key's slot.
func HintByKey(key string) RouteHint {
	return RouteHint{Key: key}
}
