package i18n

// Translator retrieves localized messages for dispatch error and report
// codes. data provides optional metadata to embed in the message (for
// example, "candidates" or "types").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	switch t.lang {
	case "ja":
		switch code {
		case "duplicate_candidate":
			return "同じ制約と優先度の候補が既に存在します"
		case "ambiguous_candidates":
			return "同順位の候補が複数一致しました"
		case "ambiguous_binding":
			return "型変数を一意に束縛できません"
		case "no_applicable_candidate":
			return "適用可能な候補がありません"
		case "unbound_type_var":
			return "型変数が未束縛です"
		case "unregister_unsupported":
			return "候補の削除は未対応です"
		}
	default: // "en"
		switch code {
		case "duplicate_candidate":
			return "a candidate of equal constraints and priority exists"
		case "ambiguous_candidates":
			return "multiple candidates of equal precedence matched"
		case "ambiguous_binding":
			return "type variable cannot be bound to a single type"
		case "no_applicable_candidate":
			return "no applicable candidates"
		case "unbound_type_var":
			return "type variable is unbound"
		case "unregister_unsupported":
			return "removing candidates is not supported"
		}
	}
	return code
}

var currentTranslator Translator = dictTranslator{lang: "en"}

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	currentTranslator = dictTranslator{lang: lang}
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		return
	}
	currentTranslator = tr
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return currentTranslator.Message(code, data) }
