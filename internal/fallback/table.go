package fallback

import "github.com/local/linerelay/internal/dispatcher"

// DefaultMessage is the reply of last resort.
const DefaultMessage = "小天使暫時沒辦法回答，請換個說法再試一次！"

// Table maps an ErrorKind to the reply shown to the user. Default is used for any
// kind without a non-empty entry and must itself be non-empty.
type Table struct {
	Messages map[dispatcher.ErrorKind]string
	Default  string
}

// DefaultTable returns the stock replies, one per kind.
func DefaultTable() Table {
	return Table{
		Messages: map[dispatcher.ErrorKind]string{
			dispatcher.KindTimeout:           "小天使想得太久了，請稍後再問一次！",
			dispatcher.KindQuotaExceeded:     "小天使今天聊太多了，需要休息一下，請晚點再來！",
			dispatcher.KindModelNotFound:     "小天使的魔法書設定有誤，請通知管理員！",
			dispatcher.KindPermissionDenied:  "小天使現在沒有權限回答，請通知管理員！",
			dispatcher.KindBadRequestPayload: "小天使看不懂這個問題，請換個說法！",
			dispatcher.KindEmptyResponse:     "Gemini沒答案!請換個說法！",
			dispatcher.KindBackendError:      "小天使思考時出了點狀況，請換個說法！",
			dispatcher.KindUnknown:           DefaultMessage,
		},
		Default: DefaultMessage,
	}
}

// Lookup never fails: missing, empty or unknown kinds get the default entry, and
// an empty default falls back to DefaultMessage.
func (t Table) Lookup(kind dispatcher.ErrorKind) string {
	if msg := t.Messages[kind]; msg != "" {
		return msg
	}
	if t.Default != "" {
		return t.Default
	}
	return DefaultMessage
}

// With returns a copy of t with the given overrides applied. Empty values are ignored.
func (t Table) With(overrides map[dispatcher.ErrorKind]string) Table {
	out := Table{Messages: make(map[dispatcher.ErrorKind]string, len(t.Messages)+len(overrides)), Default: t.Default}
	for k, v := range t.Messages {
		out.Messages[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			out.Messages[k] = v
		}
	}
	return out
}
