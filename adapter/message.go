package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IMessageElement 消息段. 变体集合封闭: 文本 / @ / 回复
type IMessageElement interface {
	// WriteCQCodeTo 以 CQ 码形式渲染
	WriteCQCodeTo(sb *strings.Builder)
}

// TextElement 纯文本段
type TextElement struct {
	Text string `json:"text"`
}

// AtElement @段, Target 为空表示目标不可解析(如 @全体成员)
type AtElement struct {
	Target *int64 `json:"target"`
}

// ReplyElement 回复段, 引用此前某条消息
type ReplyElement struct {
	ID int64 `json:"id"`
}

func (e *TextElement) WriteCQCodeTo(sb *strings.Builder) {
	sb.WriteString(e.Text)
}

func (e *AtElement) WriteCQCodeTo(sb *strings.Builder) {
	if e.Target == nil {
		sb.WriteString("[CQ:at,qq=all]")
		return
	}
	fmt.Fprintf(sb, "[CQ:at,qq=%d]", *e.Target)
}

func (e *ReplyElement) WriteCQCodeTo(sb *strings.Builder) {
	fmt.Fprintf(sb, "[CQ:reply,id=%d]", e.ID)
}

// MarshalJSON 按网关消息段格式输出
func (e *TextElement) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{"text", e.Text})
}

// MarshalJSON 按网关消息段格式输出
func (e *AtElement) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		Target *int64 `json:"target"`
	}{"at", e.Target})
}

// MarshalJSON 按网关消息段格式输出
func (e *ReplyElement) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		ID   int64  `json:"id"`
	}{"reply", e.ID})
}

// Elements 有序消息段序列
type Elements []IMessageElement

// UnmarshalJSON 按段类型解码, 出现未知段类型视为 schema 不符
func (m *Elements) UnmarshalJSON(data []byte) error {
	var raws []struct {
		Type   string `json:"type"`
		Text   string `json:"text"`
		Target *int64 `json:"target"`
		ID     int64  `json:"id"`
	}
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	elems := make(Elements, 0, len(raws))
	for _, r := range raws {
		switch r.Type {
		case "text":
			elems = append(elems, &TextElement{Text: r.Text})
		case "at":
			elems = append(elems, &AtElement{Target: r.Target})
		case "reply":
			elems = append(elems, &ReplyElement{ID: r.ID})
		default:
			return errors.Errorf("unknown message element type: %q", r.Type)
		}
	}
	*m = elems
	return nil
}

// ToStringMessage 将全部消息段渲染为一条 CQ 码字符串, 供日志与代理使用
func ToStringMessage(elems Elements) string {
	var sb strings.Builder
	for _, e := range elems {
		e.WriteCQCodeTo(&sb)
	}
	return sb.String()
}

// AtTargets 收集 @段中可解析的目标, 保持出现顺序
func AtTargets(elems Elements) []string {
	var list []string
	for _, e := range elems {
		if at, ok := e.(*AtElement); ok && at.Target != nil {
			list = append(list, strconv.FormatInt(*at.Target, 10))
		}
	}
	return list
}

// contentString 拼接文本与回复段作为记录正文, @段不计入
func contentString(elems Elements) string {
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		switch e := e.(type) {
		case *TextElement:
			parts = append(parts, e.Text)
		case *ReplyElement:
			var sb strings.Builder
			e.WriteCQCodeTo(&sb)
			parts = append(parts, sb.String())
		}
	}
	return strings.Join(parts, " ")
}
