package generate

import (
	"fmt"
	"strings"
)

// Catalog holds the user-facing texts of the pipeline. Fields containing %s
// are format strings with a single argument.
type Catalog struct {
	Usage            string
	Ack              string // %s: prompt
	Instruction      string // %s: prompt
	GenerationFailed string
	InvalidCode      string
	CodeDisplay      string // %s: code
	Success          string // %s: output
	Failure          string // %s: diagnostic
	NoOutput         string
}

// English is the default catalog.
var English = Catalog{
	Usage:            "Please provide a prompt. Example: /generate_code write a function that computes the Fibonacci sequence",
	Ack:              "Generating code for your prompt: %s",
	Instruction:      "Write Python code that accomplishes the following task: %s\n\nReturn only the code, without any explanation or Markdown formatting.",
	GenerationFailed: "Code generation failed, please try again later.",
	InvalidCode:      "The model did not produce valid Python code.",
	CodeDisplay:      "Generated code:\n```python\n%s\n```\nRunning...",
	Success:          "Execution succeeded!\nOutput:\n```\n%s\n```",
	Failure:          "Execution failed!\nError:\n```\n%s\n```",
	NoOutput:         "(no output)",
}

// Chinese is the catalog for zh-speaking chats.
var Chinese = Catalog{
	Usage:            "请提供一个代码生成提示词。例如：/generate_code 编写一个计算斐波那契数列的函数",
	Ack:              "正在根据您的提示词生成代码：%s",
	Instruction:      "请生成一段Python代码来完成以下任务：%s\n\n请只返回代码，不要包含任何解释性文字或Markdown格式。",
	GenerationFailed: "代码生成失败，请稍后再试。",
	InvalidCode:      "LLM未能生成有效的Python代码。",
	CodeDisplay:      "生成的代码：\n```python\n%s\n```\n正在执行...",
	Success:          "代码执行成功！\n输出：\n```\n%s\n```",
	Failure:          "代码执行失败！\n错误：\n```\n%s\n```",
	NoOutput:         "（无输出）",
}

// CatalogFor returns the catalog for a language code ("en", "zh", "zh-CN").
// Unknown languages fall back to English.
func CatalogFor(lang string) Catalog {
	lang = strings.ToLower(lang)
	if lang == "zh" || strings.HasPrefix(lang, "zh-") || strings.HasPrefix(lang, "zh_") {
		return Chinese
	}
	return English
}

func (c Catalog) ack(prompt string) string      { return fmt.Sprintf(c.Ack, prompt) }
func (c Catalog) instruction(task string) string { return fmt.Sprintf(c.Instruction, task) }
func (c Catalog) codeDisplay(code string) string { return fmt.Sprintf(c.CodeDisplay, code) }

func (c Catalog) success(output string) string {
	if output == "" {
		output = c.NoOutput
	}
	return fmt.Sprintf(c.Success, output)
}

func (c Catalog) failure(diagnostic string) string { return fmt.Sprintf(c.Failure, diagnostic) }
