// Package config composes the configuration of a provisioning run.
//
// Configuration is assembled from layered [Tree] values: built-in defaults,
// the files of a config directory, PRH_ environment overrides and finally a
// blueprint document. Every layer is combined with [Merge], which merges
// mappings one level deep and otherwise lets the right operand win.
//
// The merged tree is kept verbatim for manifest templates and is also decoded
// into the typed [Config] schema, which the provisioners consume.
package config
