// Copyright 2026 trieungoctam
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// 历史文本使用遗留的角色标签编码，在边界处解码为结构化消息
var rolePatterns = []struct {
	role string
	re   *regexp.Regexp
}{
	{RoleUser, regexp.MustCompile(`(?s)<USER>(.*?)</USER>`)},
	{RoleBot, regexp.MustCompile(`(?s)<BOT>(.*?)</BOT>`)},
	{RoleSale, regexp.MustCompile(`(?s)<SALE>(.*?)</SALE>`)},
}

// ParseMessages 将角色标签文本解析为按出现位置排序的消息数组。
// 顺序由标签在原文中的位置决定，与标签类型无关。
func ParseMessages(text string) []Message {
	now := time.Now()
	var messages []Message
	for _, p := range rolePatterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(text, -1) {
			content := strings.TrimSpace(text[idx[2]:idx[3]])
			if content == "" {
				continue
			}
			messages = append(messages, Message{
				Role:      p.role,
				Content:   content,
				Timestamp: now,
				SourcePos: idx[0],
			})
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].SourcePos < messages[j].SourcePos
	})
	return messages
}

// Chunk 按条数与总字符数双上限裁剪消息数组，优先丢弃最旧的消息，
// 从不切分单条消息
func Chunk(messages []Message, maxMessages, maxChars int) []Message {
	if maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	if maxChars <= 0 {
		return messages
	}

	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	for len(messages) > 1 && total > maxChars {
		total -= len(messages[0].Content)
		messages = messages[1:]
	}
	// 单条超限时截断内容而不是返回空
	if len(messages) == 1 && len(messages[0].Content) > maxChars {
		m := messages[0]
		m.Content = Truncate(m.Content, maxChars)
		return []Message{m}
	}
	return messages
}

// Truncate 在 max 字节内截断，退避到 rune 边界避免产出非法 UTF-8
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
