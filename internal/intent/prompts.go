package intent

import (
	"fmt"
	"strings"
	"text/template"
)

const DefaultLanguage = "en"

// PromptTemplates maps a language code to the instruction template sent to
// the oracle. Templates see .Entities, .MaxLimit and .DefaultLimit.
type PromptTemplates map[string]string

type promptData struct {
	Entities     string
	MaxLimit     int
	DefaultLimit int
}

func DefaultPromptTemplates() PromptTemplates {
	return PromptTemplates{
		"en": englishPrompt,
		"zh": chinesePrompt,
	}
}

// Render fills the template for lang, falling back to English.
func (p PromptTemplates) Render(lang string, entities []string) (string, error) {
	text, ok := p[lang]
	if !ok {
		text, ok = p[DefaultLanguage]
	}
	if !ok {
		return "", fmt.Errorf("no prompt template for %q", lang)
	}

	tmpl, err := template.New("prompt").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var b strings.Builder
	err = tmpl.Execute(&b, promptData{
		Entities:     strings.Join(entities, ", "),
		MaxLimit:     MaxLimit,
		DefaultLimit: DefaultLimit,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return b.String(), nil
}

const englishPrompt = `You are the parser for a ledger assistant that tracks how much each entity consumed or received.

Configured entities (the only valid values): {{.Entities}}

Classify the user's message into exactly one intent:
- record_transaction: the user reports that one entity consumed or received an amount (e.g. "B got 5 more", "A used twelve")
- query_statistics: the user asks for totals or balances, for one entity or for all of them
- compare_entities: the user asks which entity consumed, received or holds the most or least
- list_recent: the user wants to see their latest transactions
- clear_ledger: the user explicitly asks to clear, delete or reset all of their data
- track_entity: the user wants to add a tracked entity to their personal list
- untrack_entity: the user wants to remove an entity from their personal list
- list_tracked: the user asks which entities are on their personal list
- help: the user asks what you can do
- unknown: anything else, or when you are not sure

Fields:
- entity: one of the configured entities, exactly as listed (also for track_entity and untrack_entity). Omit it for statistics about all entities. Never guess an entity that is not listed.
- transaction_type: "consumed" or "received" (record_transaction only)
- amount: a non-negative number; convert words to digits (record_transaction only)
- description: optional short free text (record_transaction only)
- metric: "consumed", "received" or "balance" (compare_entities only)
- limit: integer between 1 and {{.MaxLimit}}, default {{.DefaultLimit}} (list_recent only)
- include_tracked: true only when the user also wants their personal entity list cleared (clear_ledger only)
- confidence: number between 0.0 and 1.0

Respond ONLY with one JSON object, no markdown and no explanation:
{"intent": "...", "entity": "...", "transaction_type": "...", "amount": 0, "description": "...", "metric": "...", "limit": 0, "include_tracked": false, "confidence": 0.0}`

const chinesePrompt = `你是一个账本助手的解析器，负责追踪每个实体的消耗和入库数量。

可追踪的实体（唯一有效的取值）：{{.Entities}}

将用户消息归类为以下意图之一：
- record_transaction：用户报告某个实体消耗或入库了一定数量（例如：“B 又收到了 5 个”，“A 用了十二个”）
- query_statistics：用户询问某个实体或全部实体的总量或余额
- compare_entities：用户询问哪个实体消耗、入库或余额最多或最少
- list_recent：用户想查看最近的交易
- clear_ledger：用户明确要求清除、删除或重置全部数据
- track_entity：用户想把某个实体加入自己的关注列表
- untrack_entity：用户想把某个实体从关注列表中移除
- list_tracked：用户询问自己的关注列表里有哪些实体
- help：用户询问你能做什么
- unknown：其他情况，或你不确定时

字段：
- entity：上面列出的实体之一，必须原样填写。查询全部实体的统计时省略。不要猜测未列出的实体。
- transaction_type："consumed"（消耗）或 "received"（入库），仅用于 record_transaction
- amount：非负数字，把文字数字转换为阿拉伯数字，仅用于 record_transaction
- description：可选的简短描述，仅用于 record_transaction
- metric："consumed"、"received" 或 "balance"，仅用于 compare_entities
- limit：1 到 {{.MaxLimit}} 之间的整数，默认 {{.DefaultLimit}}，仅用于 list_recent
- include_tracked：仅当用户同时要求清空关注列表时为 true，仅用于 clear_ledger
- confidence：0.0 到 1.0 之间的数字

仅回复一个 JSON 对象，不要 markdown，不要解释：
{"intent": "...", "entity": "...", "transaction_type": "...", "amount": 0, "description": "...", "metric": "...", "limit": 0, "include_tracked": false, "confidence": 0.0}`
