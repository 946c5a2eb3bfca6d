package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"tally/internal/core"
)

const (
	LanguageEnglish = "en"
	LanguageChinese = "zh"
)

// NormalizeLanguage maps any zh variant to Chinese and everything else to English.
func NormalizeLanguage(lang, fallback string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if l == "" {
		l = strings.ToLower(strings.TrimSpace(fallback))
	}
	if strings.HasPrefix(l, LanguageChinese) {
		return LanguageChinese
	}
	return LanguageEnglish
}

type catalog struct {
	recorded       string // entity, kind, amount, id
	entityNow      string // entity, consumed, received, balance
	statsLine      string // entity, consumed, received, balance, count
	noTransactions string
	rankingHeader  string // metric
	most           string
	least          string
	recentHeader   string // n
	cleared        string // n
	clearedAll     string // transactions, tracked entities
	tracking       string // entity
	alreadyTracked string // entity
	untracked      string // entity
	notTracked     string // entity
	trackedList    string // entities
	noTracked      string
	help           string // entities
	unknown        string
	storageFailed  string
	invalidAmount  string
	invalidEntity  string // entities
	invalidKind    string
	tooLong        string // max
	invalidGeneral string
	kinds          map[core.Kind]string
	metrics        map[core.Metric]string
	listSep        string
}

var catalogs = map[string]catalog{
	LanguageEnglish: {
		recorded:       "Recorded: %s %s %s (id %s).",
		entityNow:      "%s now: consumed %s, received %s, balance %s.",
		statsLine:      "%s: consumed %s, received %s, balance %s (%d transactions)",
		noTransactions: "No transactions yet.",
		rankingHeader:  "Ranking by %s:",
		most:           "Most: %s.",
		least:          "Least: %s.",
		recentHeader:   "Last %d transactions:",
		cleared:        "Cleared %d transactions.",
		clearedAll:     "Cleared %d transactions and %d tracked entities.",
		tracking:       "Now tracking %s.",
		alreadyTracked: "%s is already on your list.",
		untracked:      "Stopped tracking %s.",
		notTracked:     "%s is not on your list.",
		trackedList:    "Your tracked entities: %s.",
		noTracked:      `You are not tracking any entities yet. Say "track A" to start.`,
		help: `I can help you with:
1. Recording consumption - e.g. "A consumed 100 units"
2. Recording receipts - e.g. "B received 5 with description 'restock'"
3. Getting statistics - e.g. "stats" or "stats for A"
4. Comparing entities - e.g. "who consumed the most" or "compare balance"
5. Listing recent transactions - e.g. "recent 5"
6. Clearing your data - "clear all data", or "reset everything" to also empty your list
7. Keeping a personal list - e.g. "track A", "untrack A" or "show tracked"
Configured entities: %s.`,
		unknown:        `Sorry, I didn't understand that. Could you please rephrase? Say "help" for examples.`,
		storageFailed:  "The ledger is temporarily unavailable. Please try again.",
		invalidAmount:  "I couldn't identify a valid amount. Amounts must be non-negative numbers.",
		invalidEntity:  "I couldn't identify the entity. Tracked entities are: %s.",
		invalidKind:    "I couldn't determine if this is consumption or receipt. Could you clarify?",
		tooLong:        "The description is too long (max %d characters).",
		invalidGeneral: "That request is not valid. Could you please rephrase?",
		kinds:          map[core.Kind]string{core.Consumed: "consumed", core.Received: "received"},
		metrics:        map[core.Metric]string{core.MetricConsumed: "consumed", core.MetricReceived: "received", core.MetricBalance: "balance"},
		listSep:        ", ",
	},
	LanguageChinese: {
		recorded:       "已记录：%s %s %s（编号 %s）。",
		entityNow:      "%s 当前：消耗 %s，入库 %s，余额 %s。",
		statsLine:      "%s：消耗 %s，入库 %s，余额 %s（%d 笔交易）",
		noTransactions: "还没有任何交易记录。",
		rankingHeader:  "按%s排名：",
		most:           "最多：%s。",
		least:          "最少：%s。",
		recentHeader:   "最近 %d 笔交易：",
		cleared:        "已清除 %d 笔交易。",
		clearedAll:     "已清除 %d 笔交易和 %d 个关注的实体。",
		tracking:       "已开始关注 %s。",
		alreadyTracked: "%s 已经在你的关注列表中。",
		untracked:      "已停止关注 %s。",
		notTracked:     "%s 不在你的关注列表中。",
		trackedList:    "你关注的实体：%s。",
		noTracked:      `你还没有关注任何实体。输入 "track A" 开始关注。`,
		help: `我可以帮你：
1. 记录消耗 - 例如："A consumed 100 units"
2. 记录入库 - 例如："B received 5 with description 'restock'"
3. 获取统计数据 - 例如："stats" 或 "stats for A"
4. 比较实体 - 例如："who consumed the most" 或 "compare balance"
5. 查看最近交易 - 例如："recent 5"
6. 清除数据 - "clear all data"，或 "reset everything" 同时清空关注列表
7. 管理关注列表 - 例如："track A"、"untrack A" 或 "show tracked"
可追踪的实体：%s。`,
		unknown:        `抱歉，我没明白。你能换个说法吗？输入 "help" 查看示例。`,
		storageFailed:  "账本暂时不可用，请稍后再试。",
		invalidAmount:  "我没能识别出有效的数量。数量必须是非负数字。",
		invalidEntity:  "我没能识别出实体。可追踪的实体有：%s。",
		invalidKind:    "我无法确定这是消耗还是入库。你能澄清一下吗？",
		tooLong:        "描述太长了（最多 %d 个字符）。",
		invalidGeneral: "这个请求无效。你能换个说法吗？",
		kinds:          map[core.Kind]string{core.Consumed: "消耗", core.Received: "入库"},
		metrics:        map[core.Metric]string{core.MetricConsumed: "消耗", core.MetricReceived: "入库", core.MetricBalance: "余额"},
		listSep:        "，",
	},
}

func catalogFor(lang string) catalog {
	if c, ok := catalogs[lang]; ok {
		return c
	}
	return catalogs[LanguageEnglish]
}

func (c catalog) kind(k core.Kind) string {
	if s, ok := c.kinds[k]; ok {
		return s
	}
	return string(k)
}

func (c catalog) metric(m core.Metric) string {
	if s, ok := c.metrics[m]; ok {
		return s
	}
	return string(m)
}

func (c catalog) renderRecorded(tx core.Transaction, st *core.EntityStatistics) string {
	text := fmt.Sprintf(c.recorded, tx.Entity, c.kind(tx.Kind), tx.Amount, tx.ID)
	if st != nil {
		text += " " + fmt.Sprintf(c.entityNow, st.Entity, st.TotalConsumed, st.TotalReceived, st.NetBalance)
	}
	return text
}

func (c catalog) renderStatistics(rows []core.EntityStatistics) string {
	if len(rows) == 0 {
		return c.noTransactions
	}
	lines := make([]string, 0, len(rows))
	for _, s := range rows {
		lines = append(lines, fmt.Sprintf(c.statsLine, s.Entity, s.TotalConsumed, s.TotalReceived, s.NetBalance, s.TransactionCount))
	}
	return strings.Join(lines, "\n")
}

func (c catalog) renderRanking(metric core.Metric, ranking []core.Ranking) string {
	if len(ranking) == 0 {
		return c.noTransactions
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf(c.rankingHeader, c.metric(metric)))
	for i, r := range ranking {
		fmt.Fprintf(&b, "\n%d. %s %s", i+1, r.Entity, r.Value)
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf(c.most, ranking[0].Entity))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf(c.least, ranking[len(ranking)-1].Entity))
	return b.String()
}

func (c catalog) renderRecent(txs []core.Transaction) string {
	if len(txs) == 0 {
		return c.noTransactions
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf(c.recentHeader, len(txs)))
	for _, t := range txs {
		fmt.Fprintf(&b, "\n%s %s %s %s", t.Timestamp.Format("2006-01-02 15:04:05"), t.Entity, c.kind(t.Kind), t.Amount)
		if t.Description != "" {
			fmt.Fprintf(&b, " (%s)", t.Description)
		}
	}
	return b.String()
}

func (c catalog) renderTracked(names []string) string {
	if len(names) == 0 {
		return c.noTracked
	}
	return fmt.Sprintf(c.trackedList, strings.Join(names, c.listSep))
}

func (c catalog) renderHelp(entities []string) string {
	return fmt.Sprintf(c.help, strings.Join(entities, c.listSep))
}

// renderValidation explains why a write was rejected.
func (c catalog) renderValidation(err error, entities []string) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return c.invalidAmount
	case errors.Is(err, core.ErrUnknownEntity):
		return fmt.Sprintf(c.invalidEntity, strings.Join(entities, c.listSep))
	case errors.Is(err, core.ErrInvalidKind):
		return c.invalidKind
	case errors.Is(err, core.ErrDescriptionTooLong):
		return fmt.Sprintf(c.tooLong, core.MaxDescriptionLength)
	default:
		return c.invalidGeneral
	}
}
