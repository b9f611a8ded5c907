package sourceindex

import "strings"

// patternSets is the pre-parsed form of a collection's include/ignore
// glob lists, compiled once per sync so the directory walk tests plain
// set membership instead of calling a glob matcher per file.
type patternSets struct {
	allowExt   map[string]bool
	allowName  map[string]bool
	ignoreDir  map[string]bool
	ignoreExt  map[string]bool
	ignoreName map[string]bool
}

// compilePatterns parses include and ignore glob lists into plain sets.
// Recognised forms: "**/*.ext" (extension match), "**/name" (exact
// basename match), and, for ignore patterns only, "**/name/**"
// (directory basename match). Anything else is ignored as unsupported;
// this is a deliberate restriction, not a general glob engine.
func compilePatterns(includeGlobs, ignoreGlobs []string) patternSets {
	p := patternSets{
		allowExt:   map[string]bool{},
		allowName:  map[string]bool{},
		ignoreDir:  map[string]bool{},
		ignoreExt:  map[string]bool{},
		ignoreName: map[string]bool{},
	}

	for _, g := range includeGlobs {
		if ext, ok := extPattern(g); ok {
			p.allowExt[ext] = true
			continue
		}
		if name, ok := namePattern(g); ok {
			p.allowName[name] = true
		}
	}

	for _, g := range ignoreGlobs {
		if name, ok := dirPattern(g); ok {
			p.ignoreDir[name] = true
			continue
		}
		if ext, ok := extPattern(g); ok {
			p.ignoreExt[ext] = true
			continue
		}
		if name, ok := namePattern(g); ok {
			p.ignoreName[name] = true
		}
	}

	return p
}

func extPattern(g string) (string, bool) {
	const prefix = "**/*"
	if strings.HasPrefix(g, prefix) && len(g) > len(prefix) {
		return g[len(prefix):], true
	}
	return "", false
}

func namePattern(g string) (string, bool) {
	const prefix = "**/"
	if strings.HasPrefix(g, prefix) {
		rest := g[len(prefix):]
		if rest != "" && !strings.Contains(rest, "/") && !strings.HasPrefix(rest, "*") {
			return rest, true
		}
	}
	return "", false
}

func dirPattern(g string) (string, bool) {
	const suffix = "/**"
	if strings.HasSuffix(g, suffix) {
		return namePattern(strings.TrimSuffix(g, suffix))
	}
	return "", false
}

func (p patternSets) allowed(basename, ext string) bool {
	return p.allowExt[ext] || p.allowName[basename]
}

func (p patternSets) ignoredFile(basename, ext string) bool {
	return p.ignoreExt[ext] || p.ignoreName[basename]
}

func (p patternSets) ignoredDir(basename string) bool {
	return p.ignoreDir[basename]
}
