package syntax

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	textlang "golang.org/x/text/language"
)

var (
	pythonLineRe = regexp.MustCompile(`File ".*", line (\d+)`)
	syntaxMsgRe  = regexp.MustCompile(`SyntaxError: (.+)`)
	rubyLineRe   = regexp.MustCompile(`-e:(\d+): (.+)`)
	jsLineRe     = regexp.MustCompile(`:(\d+)`)
	jsAtLineRe   = regexp.MustCompile(`at.*:(\d+):\d+`)
	shellLineRe  = regexp.MustCompile(`line (\d+):(.*)`)

	titleCaser = cases.Title(textlang.Und)
)

const hashCommentMessage = "'#' is not valid comment syntax. Use '//' or '/* */'"

func checkPython(ctx context.Context, c *Checker, code string) error {
	stderr, _, ok, err := c.withFile(ctx, "syntax_check.py", code, func(path string) []string {
		return []string{"python3", "-m", "py_compile", path}
	})
	if err != nil || ok {
		return err
	}
	return parsePythonError(stderr, code)
}

func parsePythonError(stderr, code string) *ValidationError {
	if m := pythonLineRe.FindStringSubmatch(stderr); m != nil && strings.Contains(stderr, "SyntaxError") {
		line, _ := strconv.Atoi(m[1])
		message := "Invalid syntax"
		if mm := syntaxMsgRe.FindStringSubmatch(stderr); mm != nil {
			message = mm[1]
		}
		return lineError("python", "Python", line, message, sourceLine(code, line))
	}
	return genericError("python", "Python", stderr)
}

func checkRuby(ctx context.Context, c *Checker, code string) error {
	stderr, ok, err := c.inline(ctx, []string{"ruby", "-c", "-e", code})
	if err != nil || ok {
		return err
	}
	return parseRubyError(stderr)
}

func parseRubyError(stderr string) *ValidationError {
	if m := rubyLineRe.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[1])
		return lineError("ruby", "Ruby", line, m[2], "")
	}
	return genericError("ruby", "Ruby", stderr)
}

func checkJavaScript(ctx context.Context, c *Checker, code string) error {
	stderr, _, ok, err := c.withFile(ctx, "syntax_check.js", code, func(path string) []string {
		return []string{"node", "--check", path}
	})
	if err != nil || ok {
		return err
	}
	return parseJavaScriptError(stderr, code)
}

func parseJavaScriptError(stderr, code string) *ValidationError {
	message := "Invalid syntax"
	if m := syntaxMsgRe.FindStringSubmatch(stderr); m != nil {
		message = m[1]
	}

	m := jsLineRe.FindStringSubmatch(stderr)
	if m == nil {
		m = jsAtLineRe.FindStringSubmatch(stderr)
	}
	if m == nil {
		return genericError("javascript", "JavaScript", stderr)
	}

	line, _ := strconv.Atoi(m[1])
	details := sourceLine(code, line)
	// Python-style comments are a common mistake worth naming.
	if strings.HasPrefix(details, "#") && !strings.HasPrefix(details, "#!") {
		message = hashCommentMessage
	}
	return lineError("javascript", "JavaScript", line, message, details)
}

func checkShell(shell string, flags ...string) strategy {
	return func(ctx context.Context, c *Checker, code string) error {
		argv := append([]string{shell}, flags...)
		stderr, ok, err := c.inline(ctx, append(argv, code))
		if err != nil || ok {
			return err
		}
		return parseShellError(shell, stderr)
	}
}

func parseShellError(shell, stderr string) *ValidationError {
	display := titleCaser.String(shell)
	if m := shellLineRe.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[1])
		return lineError(shell, display, line, strings.TrimSpace(m[2]), "")
	}
	return genericError(shell, display, stderr)
}
