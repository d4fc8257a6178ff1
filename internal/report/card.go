package report

// Card 飞书交互式卡片（schema 2.0）
type Card struct {
	MsgType string   `json:"msg_type"`
	Card    CardBody `json:"card"`
}

// CardBody 卡片主体
type CardBody struct {
	Schema string       `json:"schema"`
	Config CardConfig   `json:"config"`
	Header CardHeader   `json:"header"`
	Body   CardElements `json:"body"`
}

// CardConfig 卡片配置
type CardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

// CardHeader 卡片标题
type CardHeader struct {
	Title    CardText `json:"title"`
	Template string   `json:"template"`
}

// CardText 文本
type CardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

// CardElements 元素列表
type CardElements struct {
	Elements []Element `json:"elements"`
}

// Element 卡片元素：markdown 或分割线
type Element struct {
	Tag     string `json:"tag"`
	Content string `json:"content,omitempty"`
}

func markdown(content string) Element {
	return Element{Tag: "markdown", Content: content}
}

func divider() Element {
	return Element{Tag: "hr"}
}

func newCard(title string, elements []Element) Card {
	return Card{
		MsgType: "interactive",
		Card: CardBody{
			Schema: "2.0",
			Config: CardConfig{WideScreenMode: true},
			Header: CardHeader{
				Title:    CardText{Tag: "plain_text", Content: title},
				Template: "blue",
			},
			Body: CardElements{Elements: elements},
		},
	}
}
