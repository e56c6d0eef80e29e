package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"resume-analyzer-go/internal/analyzer"
)

const demoStructured = `Name -Ram Kumar
Contact-9876543210,987654321
Current location-Bengaluru,Karnataka
year of experience: 10 years 3 months
skills:java,python,AI/ML
Skills: SQL
Degree:Btech
Passout:2015
Colege name:XYZ
`

const demoMessy = `Ram Kumar is a passionate software engineer.
He has worked at multiple companies from 2018-2020 and 2019-2022.
Currently based in Bangalore.
Skills include backend systems, Python, Java.
Education: XYZ Institute of Technology, BTech, 2015.
Mobile: +91 9876543210
`

func (r *runner) demo(ctx context.Context) error {
	fmt.Fprintln(r.out, "=== 模式1 (structured) ===")
	if err := r.analyzeText(ctx, demoStructured, analyzer.ModeStructured); err != nil {
		return err
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "=== 模式2 (messy: 正则 + 模型) ===")
	return r.analyzeText(ctx, demoMessy, analyzer.ModeMessy)
}

// isExit 段落第一行输入 exit 或 quit 结束循环
func isExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}

// interactive 逐段读取简历文本，空行表示一段结束。
// 段落第一行为 ":mode <模式>" 时切换后续使用的模式。
func (r *runner) interactive(ctx context.Context, in io.Reader, mode analyzer.Mode) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	prompt := func() {
		name := string(mode)
		if name == "" {
			name = string(r.analyzer.DefaultMode())
		}
		fmt.Fprintf(r.out, "\n[%s] 粘贴简历文本，空行结束 (exit 退出):\n", name)
	}

	var lines []string
	flush := func() {
		text := strings.Join(lines, "\n")
		lines = lines[:0]
		if strings.TrimSpace(text) == "" {
			return
		}
		if err := r.analyzeText(ctx, text, mode); err != nil {
			fmt.Fprintf(r.out, "分析失败: %v\n", err)
		}
	}

	prompt()
	for scanner.Scan() {
		line := scanner.Text()

		if len(lines) == 0 {
			if isExit(line) {
				return nil
			}
			if arg, ok := strings.CutPrefix(strings.TrimSpace(line), ":mode"); ok {
				m, err := analyzer.ParseMode(arg)
				if err != nil {
					fmt.Fprintf(r.out, "%v\n", err)
				} else {
					mode = m
				}
				prompt()
				continue
			}
		}

		if strings.TrimSpace(line) == "" {
			if len(lines) > 0 {
				flush()
				prompt()
			}
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("读取输入失败: %w", err)
	}
	flush()
	return nil
}
