package syntax

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	javaClassRe        = regexp.MustCompile(`public\s+class\s+(\w+)`)
	groovyAtLineRe     = regexp.MustCompile(`at line (\d+), column \d+`)
	groovyMsgRe        = regexp.MustCompile(`(.+?) at line`)
	clojureSyntaxRe    = regexp.MustCompile(`Syntax error.*at \(.*:(\d+):\d+\)`)
	clojureSyntaxMsgRe = regexp.MustCompile(`Syntax error (.+?) at`)
	clojureLineRe      = regexp.MustCompile(`line (\d+), column \d+`)
	clojureRuntimeRe   = regexp.MustCompile(`RuntimeException: (.+)`)
)

// available reports whether a compiler is installed. JVM checks are skipped
// without one.
func (c *Checker) available(binary string) bool {
	_, err := c.lookPath(binary)
	return err == nil
}

func checkJava(ctx context.Context, c *Checker, code string) error {
	if !c.available("javac") {
		return nil
	}
	class := "Main"
	if m := javaClassRe.FindStringSubmatch(code); m != nil {
		class = m[1]
	}
	stderr, path, ok, err := c.withFile(ctx, class+".java", code, func(path string) []string {
		return []string{"javac", "-Xlint:all", path}
	})
	if err != nil || ok {
		return err
	}
	return parseCompilerError("java", "Java", stderr, path, `:(\d+): error: (.+)`, code)
}

func checkKotlin(ctx context.Context, c *Checker, code string) error {
	if !c.available("kotlinc-jvm") {
		return nil
	}
	stderr, path, ok, err := c.withFile(ctx, "syntax_check.kts", code, func(path string) []string {
		return []string{"kotlinc-jvm", "-script", "-nowarn", path}
	})
	if err != nil || ok {
		return err
	}
	return parseCompilerError("kotlin", "Kotlin", stderr, path, `:(\d+):\d+: error: (.+)`, code)
}

func checkScala(ctx context.Context, c *Checker, code string) error {
	if !c.available("scalac") {
		return nil
	}
	stderr, path, ok, err := c.withFile(ctx, "syntax_check.scala", code, func(path string) []string {
		return []string{"scalac", "-Ystop-after:parser", path}
	})
	if err != nil || ok {
		return err
	}
	return parseCompilerError("scala", "Scala", stderr, path, `:(\d+): error: (.+)`, code)
}

// parseCompilerError matches "<path><suffix>" where suffix captures the line
// number and the message.
func parseCompilerError(language, display, stderr, path, suffix, code string) *ValidationError {
	re := regexp.MustCompile(regexp.QuoteMeta(path) + suffix)
	if m := re.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[1])
		return lineError(language, display, line, strings.TrimSpace(m[2]), sourceLine(code, line))
	}
	return genericError(language, display, stderr)
}

func checkGroovy(ctx context.Context, c *Checker, code string) error {
	if !c.available("groovy") {
		return nil
	}
	stderr, path, ok, err := c.withFile(ctx, "syntax_check.groovy", code, func(path string) []string {
		return []string{"groovy", "-e", fmt.Sprintf("new GroovyShell().parse(new File('%s'))", path)}
	})
	if err != nil || ok {
		return err
	}
	return parseGroovyError(stderr, path)
}

func parseGroovyError(stderr, path string) *ValidationError {
	if m := groovyAtLineRe.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[1])
		message := "Syntax error"
		if mm := groovyMsgRe.FindStringSubmatch(stderr); mm != nil {
			message = mm[1]
		}
		return lineError("groovy", "Groovy", line, message, "")
	}
	re := regexp.MustCompile(regexp.QuoteMeta(path) + `: (\d+): (.+)`)
	if m := re.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[1])
		return lineError("groovy", "Groovy", line, strings.TrimSpace(m[2]), "")
	}
	return genericError("groovy", "Groovy", stderr)
}

func checkClojure(ctx context.Context, c *Checker, code string) error {
	if !c.available("clojure") {
		return nil
	}
	stderr, _, ok, err := c.withFile(ctx, "syntax_check.clj", code, func(path string) []string {
		program := fmt.Sprintf(`(try (clojure.core/load-file %q) (System/exit 0) `+
			`(catch Exception e (binding [*out* *err*] (println (.getMessage e))) (System/exit 1)))`, path)
		return []string{"clojure", "-e", program}
	})
	if err != nil || ok {
		return err
	}
	return parseClojureError(stderr)
}

func parseClojureError(stderr string) *ValidationError {
	if m := clojureSyntaxRe.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[1])
		message := "Invalid syntax"
		if mm := clojureSyntaxMsgRe.FindStringSubmatch(stderr); mm != nil {
			message = mm[1]
		}
		return lineError("clojure", "Clojure", line, message, "")
	}
	if m := clojureLineRe.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[1])
		message := "Syntax error"
		if mm := clojureRuntimeRe.FindStringSubmatch(stderr); mm != nil {
			message = mm[1]
		}
		return lineError("clojure", "Clojure", line, message, "")
	}
	return genericError("clojure", "Clojure", stderr)
}
