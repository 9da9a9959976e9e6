package gemini

import "fmt"

const promptTemplate = `请搜索并列举中国在 %s 期间发布的重要政策、法规或官方通知。
对于每一项政策，请提供：
1. 政策名称
2. 发布部门（如果明确）
3. 核心内容简要总结（2-3句话）
4. 政策分类（如：金融、科技、社会、外交等）

请确保信息真实准确，主要关注国务院、各部委及地方政府发布的关键动态。
`

// BuildPrompt renders the lookup prompt for date.
func BuildPrompt(date string) string {
	return fmt.Sprintf(promptTemplate, date)
}
