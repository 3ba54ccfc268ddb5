package chtl

import "github.com/iancoleman/strcase"

// Configuration holds the recognized [Configuration] options and their
// defaults, per spec.md §4.I.
type Configuration struct {
	Name string // "" for the unnamed default block

	IndexInitialCount         int
	DebugMode                 bool
	DisableNameGroup          bool
	DisableCustomOriginType   bool
	DisableStyleAutoAddClass  bool
	DisableStyleAutoAddID     bool
	DisableScriptAutoAddClass bool
	DisableScriptAutoAddID    bool
	DisableDefaultNamespace   bool

	Aliases     *aliasTable
	OriginTypes map[string]bool // registered via [OriginType]

	set map[string]bool // option keys ApplyOption has actually set, for Merge
}

// DefaultConfiguration returns the defaults spec.md §4.I lists verbatim.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		IndexInitialCount:         0,
		DebugMode:                 false,
		DisableNameGroup:          true,
		DisableCustomOriginType:   false,
		DisableStyleAutoAddClass:  false,
		DisableStyleAutoAddID:     false,
		DisableScriptAutoAddClass: true,
		DisableScriptAutoAddID:    true,
		DisableDefaultNamespace:   false,
		Aliases:                   newAliasTable(),
		OriginTypes:               map[string]bool{},
		set:                       map[string]bool{},
	}
}

// optionKey normalizes a [Configuration] key so that both the canonical
// SCREAMING_SNAKE_CASE spelling and common case variants resolve to the
// same option, the way strcase.ToScreamingSnake folds an arbitrary
// identifier into the form the option table is keyed by.
func optionKey(raw string) string {
	return strcase.ToScreamingSnake(raw)
}

// ApplyOption sets one [Configuration] key=value pair, reporting whether
// the key was recognized.
func (c *Configuration) ApplyOption(key, value string) bool {
	k := optionKey(key)
	switch k {
	case "INDEX_INITIAL_COUNT":
		c.IndexInitialCount = parseIntOr(value, c.IndexInitialCount)
	case "DEBUG_MODE":
		c.DebugMode = parseBoolOr(value, c.DebugMode)
	case "DISABLE_NAME_GROUP":
		c.DisableNameGroup = parseBoolOr(value, c.DisableNameGroup)
	case "DISABLE_CUSTOM_ORIGIN_TYPE":
		c.DisableCustomOriginType = parseBoolOr(value, c.DisableCustomOriginType)
	case "DISABLE_STYLE_AUTO_ADD_CLASS":
		c.DisableStyleAutoAddClass = parseBoolOr(value, c.DisableStyleAutoAddClass)
	case "DISABLE_STYLE_AUTO_ADD_ID":
		c.DisableStyleAutoAddID = parseBoolOr(value, c.DisableStyleAutoAddID)
	case "DISABLE_SCRIPT_AUTO_ADD_CLASS":
		c.DisableScriptAutoAddClass = parseBoolOr(value, c.DisableScriptAutoAddClass)
	case "DISABLE_SCRIPT_AUTO_ADD_ID":
		c.DisableScriptAutoAddID = parseBoolOr(value, c.DisableScriptAutoAddID)
	case "DISABLE_DEFAULT_NAMESPACE":
		c.DisableDefaultNamespace = parseBoolOr(value, c.DisableDefaultNamespace)
	default:
		return false
	}
	c.set[k] = true
	return true
}

// Merge folds other into c field-by-field, matching spec.md §4.I's
// "multiple [Configuration] blocks ... are merged": only options other's
// own block actually set (other.set, populated by ApplyOption) overwrite
// c's value, so a later block's untouched defaults never clobber an
// earlier block's settings. Aliases and OriginTypes union rather than
// replace, for the same reason.
func (c *Configuration) Merge(other *Configuration) {
	if other == nil {
		return
	}
	if other.Name != "" {
		c.Name = other.Name
	}
	for k := range other.set {
		switch k {
		case "INDEX_INITIAL_COUNT":
			c.IndexInitialCount = other.IndexInitialCount
		case "DEBUG_MODE":
			c.DebugMode = other.DebugMode
		case "DISABLE_NAME_GROUP":
			c.DisableNameGroup = other.DisableNameGroup
		case "DISABLE_CUSTOM_ORIGIN_TYPE":
			c.DisableCustomOriginType = other.DisableCustomOriginType
		case "DISABLE_STYLE_AUTO_ADD_CLASS":
			c.DisableStyleAutoAddClass = other.DisableStyleAutoAddClass
		case "DISABLE_STYLE_AUTO_ADD_ID":
			c.DisableStyleAutoAddID = other.DisableStyleAutoAddID
		case "DISABLE_SCRIPT_AUTO_ADD_CLASS":
			c.DisableScriptAutoAddClass = other.DisableScriptAutoAddClass
		case "DISABLE_SCRIPT_AUTO_ADD_ID":
			c.DisableScriptAutoAddID = other.DisableScriptAutoAddID
		case "DISABLE_DEFAULT_NAMESPACE":
			c.DisableDefaultNamespace = other.DisableDefaultNamespace
		}
		c.set[k] = true
	}
	for alias, canon := range other.Aliases.typePrefix {
		c.Aliases.typePrefix[alias] = canon
	}
	for alias, canon := range other.Aliases.keyword {
		c.Aliases.keyword[alias] = canon
	}
	for alias, canon := range other.Aliases.blockTag {
		c.Aliases.blockTag[alias] = canon
	}
	for name := range other.OriginTypes {
		c.OriginTypes[name] = true
	}
}

func parseBoolOr(s string, fallback bool) bool {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return fallback
}

func parseIntOr(s string, fallback int) int {
	n := 0
	any := false
	for _, r := range s {
		if r < '0' || r > '9' {
			return fallback
		}
		any = true
		n = n*10 + int(r-'0')
	}
	if !any {
		return fallback
	}
	return n
}

// aliasTable is the [Name] sub-block's alias layer: a group like
// "CUSTOM_STYLE = [@Style, @style, @CSS];" makes every listed spelling
// resolve to the first (canonical) one. Applied during lexing of
// subsequent input only (spec.md §4.I), never retroactively.
type aliasTable struct {
	typePrefix map[string]string // alias (no leading @) -> canonical
	keyword    map[string]string
	blockTag   map[string]string
}

func newAliasTable() *aliasTable {
	return &aliasTable{
		typePrefix: map[string]string{},
		keyword:    map[string]string{},
		blockTag:   map[string]string{},
	}
}

// DefineTypePrefixGroup registers aliases for a type prefix, e.g.
// group("Style", []string{"style", "CSS"}) after the canonical "Style" is
// implied as the first member by the parser's [Name] handling.
func (a *aliasTable) DefineTypePrefixGroup(canonical string, aliases []string) {
	for _, alias := range aliases {
		a.typePrefix[alias] = canonical
	}
	a.typePrefix[canonical] = canonical
}

func (a *aliasTable) DefineKeywordGroup(canonical string, aliases []string) {
	for _, alias := range aliases {
		a.keyword[alias] = canonical
	}
	a.keyword[canonical] = canonical
}

func (a *aliasTable) DefineBlockTagGroup(canonical string, aliases []string) {
	for _, alias := range aliases {
		a.blockTag[alias] = canonical
	}
	a.blockTag[canonical] = canonical
}

func (a *aliasTable) resolveTypePrefix(word string) (string, bool) {
	canon, ok := a.typePrefix[word]
	return canon, ok
}

func (a *aliasTable) resolveKeyword(word string) (string, bool) {
	canon, ok := a.keyword[word]
	return canon, ok
}

func (a *aliasTable) resolveBlockTag(word string) (string, bool) {
	canon, ok := a.blockTag[word]
	return canon, ok
}
