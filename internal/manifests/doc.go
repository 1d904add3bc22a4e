// Package manifests renders the Kubernetes manifests and cloud-init payloads
// used during provisioning from named text/template templates.
//
// Templates are embedded in the binary and may be overridden one by one from
// a directory on disk. Besides the sprig function library, templates can use
// the toYaml, toJson and b64encode filters.
package manifests
