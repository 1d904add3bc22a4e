// Package labels holds the label and annotation keys used against Harvester
// and Rancher, and builds the label selectors used to look resources up.
package labels
