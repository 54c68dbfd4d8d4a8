// Package tcp provides the TCP connectors for the kvlink connection layer.
package tcp
