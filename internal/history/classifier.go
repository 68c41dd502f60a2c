package history

import (
	"regexp"
	"strings"
)

// State is carried from one line to the next while classifying a
// submission.
type State struct {
	// InBlock is set inside a definition body.
	InBlock bool
	// Prev is the previous line, whether it was kept or not.
	Prev string
}

// Classifier decides, line by line, which parts of a successful submission
// are durable enough to replay. Classifiers are textual heuristics, not
// parsers: they are expected to misclassify unusual code.
type Classifier interface {
	Classify(line string, s State) (keep bool, next State)
}

var classifiers = map[string]Classifier{
	"python":     pythonClassifier{},
	"javascript": scriptClassifier{},
	"typescript": scriptClassifier{},
	"ruby":       rubyClassifier{},
}

// ClassifierFor returns the classifier of a history-eligible language.
func ClassifierFor(language string) (Classifier, bool) {
	c, ok := classifiers[language]
	return c, ok
}

var (
	pyDefinitionRe = regexp.MustCompile(`^\s*(def|class)\s+`)
	pyAssignRe     = regexp.MustCompile(`^\w+\s*=`)
	pyIndentAssign = regexp.MustCompile(`^\s+\w+\s*=`)
	pyCompoundRe   = regexp.MustCompile(`^\w+\s*[+\-*/]=`)
	columnZeroRe   = regexp.MustCompile(`^\S`)

	jsDeclarationRe = regexp.MustCompile(`^\s*(function|const|let|var|class)`)
	jsAssignRe      = regexp.MustCompile(`^\s*\w+\s*=`)

	rbDefinitionRe = regexp.MustCompile(`^\s*(def|class|module)\s+`)
	rbConstantRe   = regexp.MustCompile(`^\s*[A-Z]\w*\s*=`)
	rbIvarRe       = regexp.MustCompile(`^\s*@\w+\s*=`)
)

// pythonClassifier keeps definitions with their indented bodies, imports,
// decorators, simple assignments and top-level compound assignments such as
// counter += 1.
type pythonClassifier struct{}

func (pythonClassifier) Classify(line string, s State) (bool, State) {
	next := State{InBlock: s.InBlock, Prev: line}

	if pyDefinitionRe.MatchString(line) || strings.HasPrefix(strings.TrimSpace(s.Prev), "@") {
		next.InBlock = true
		return true, next
	}
	if s.InBlock {
		if columnZeroRe.MatchString(line) {
			next.InBlock = false
			return pythonKeeps(line), next
		}
		return true, next
	}
	return pythonKeeps(line), next
}

func pythonKeeps(line string) bool {
	stripped := strings.TrimSpace(line)
	return stripped == "" ||
		strings.HasPrefix(stripped, "import ") ||
		strings.HasPrefix(stripped, "from ") ||
		strings.HasPrefix(stripped, "@") ||
		pyAssignRe.MatchString(line) ||
		pyIndentAssign.MatchString(line) ||
		pyCompoundRe.MatchString(line)
}

// scriptClassifier serves JavaScript and TypeScript: declarations, imports
// and assignments stay, expression statements go.
type scriptClassifier struct{}

func (scriptClassifier) Classify(line string, s State) (bool, State) {
	keep := strings.TrimSpace(line) == "" ||
		strings.Contains(line, "import ") ||
		strings.Contains(line, "require(") ||
		jsDeclarationRe.MatchString(line) ||
		jsAssignRe.MatchString(line)
	return keep, State{Prev: line}
}

// rubyClassifier keeps def/class/module blocks through the first line that is
// exactly "end", plus requires and constant or instance variable assignments.
type rubyClassifier struct{}

func (rubyClassifier) Classify(line string, s State) (bool, State) {
	next := State{InBlock: s.InBlock, Prev: line}

	switch {
	case rbDefinitionRe.MatchString(line):
		next.InBlock = true
		return true, next
	case s.InBlock:
		if strings.TrimSpace(line) == "end" {
			next.InBlock = false
		}
		return true, next
	}

	keep := strings.TrimSpace(line) == "" ||
		strings.HasPrefix(line, "require ") ||
		strings.HasPrefix(line, "require_relative ") ||
		rbConstantRe.MatchString(line) ||
		rbIvarRe.MatchString(line)
	return keep, next
}
