package job

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cronsentinel/cronsentinel/internal/errs"
)

// allowedScalarTags is the standard YAML 1.1 scalar/collection tag
// shorthand set; any "!!tag" outside this list is rejected (Open Question
// 1 in DESIGN.md).
var allowedScalarTags = map[string]bool{
	"str": true, "int": true, "float": true, "bool": true, "null": true,
	"timestamp": true, "map": true, "seq": true, "binary": true,
	"set": true, "omap": true, "pairs": true,
}

var tagOccurrence = regexp.MustCompile(`!!([^\s'"{}\[\],]+)`)

// scanYAMLSafety runs a textual prescan over the raw document before it
// is parsed: it rejects any !!ruby/... or !!python/... tag, and any !!
// tag not immediately followed by a standard YAML scalar tag.
func scanYAMLSafety(raw []byte) error {
	for _, match := range tagOccurrence.FindAllSubmatch(raw, -1) {
		tag := string(match[1])
		if strings.HasPrefix(tag, "ruby/") || strings.HasPrefix(tag, "python/") {
			return errs.New(errs.Security, "config.yml contains unsafe type tag: !!%s", tag)
		}
		if !allowedScalarTags[tag] {
			return errs.New(errs.Security, "config.yml contains unsafe type tag: !!%s", tag)
		}
	}
	return nil
}

// parseConfig parses raw as a strict, safe YAML document: only primitive
// scalars, mappings, and sequences are accepted, and aliases are
// disallowed.
func parseConfig(raw []byte) (*rawJobConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, errs.Wrap(errs.Validation, err, "config.yml is not valid YAML")
	}

	if err := rejectAliasesAndUnsafeTags(&root); err != nil {
		return nil, err
	}

	var cfg rawJobConfig
	if err := root.Decode(&cfg); err != nil {
		return nil, errs.Wrap(errs.Validation, err, "config.yml does not match the expected shape")
	}
	return &cfg, nil
}

// rejectAliasesAndUnsafeTags walks the parsed node tree as defense in
// depth alongside the textual prescan: it refuses YAML aliases outright
// and refuses any explicit tag outside the standard scalar/collection set.
func rejectAliasesAndUnsafeTags(n *yaml.Node) error {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode {
		return errs.New(errs.Security, "config.yml uses a YAML alias, which is not permitted")
	}
	if n.Tag != "" {
		bare := strings.TrimPrefix(n.Tag, "!!")
		if !strings.HasPrefix(n.Tag, "!!") || !allowedScalarTags[bare] {
			return errs.New(errs.Security, "config.yml contains unsafe type tag: %s", n.Tag)
		}
	}
	for _, child := range n.Content {
		if err := rejectAliasesAndUnsafeTags(child); err != nil {
			return err
		}
	}
	return nil
}
