package symptoms

import (
	"strings"

	"github.com/thebtf/hearme/pkg/models"
)

var urgentReply = models.StructuredReply{
	ImmediateResponse: "أنا قلق بشأن ما ذكرته من أفكار انتحارية. هذه علامة مهمة تحتاج إلى دعم فوري.",
	FollowUpQuestion:  "هل يمكنك مشاركة المزيد عن هذه الأفكار؟",
	SuggestedAction:   "يوصى بالاتصال بخط المساعدة النفسية المحلي أو التوجه إلى أقرب مركز صحة نفسية",
}

var genericReply = models.StructuredReply{
	ImmediateResponse: "شكرًا لمشاركة مشاعرك.",
	FollowUpQuestion:  "هل هناك أي شيء آخر تريد التحدث عنه؟",
	SuggestedAction:   "استمر في مراقبة مشاعرك ولا تتردد في طلب المساعدة إذا احتجت",
}

const depressedIntro = "أنا ألاحظ بعض العلامات التي قد تحتاج إلى انتباه:"

// symptomSentences are appended in this order for a depressed label.
var symptomSentences = []struct {
	key      string
	sentence string
}{
	{Worthlessness, "أنا أسمع أنك تشعر بعدم القيمة."},
	{PoorConcentration, "يبدو أنك تواجه صعوبة في التركيز."},
	{LowEnergy, "أرى أن طاقتك منخفضة مؤخرًا."},
	{SleepProblems, "لاحظت أنك تعاني من مشاكل في النوم."},
	{AppetiteProblems, "يبدو أن شهيتك قد تغيرت."},
}

// Reply builds the rule-based reply. Suicidal ideation always gets the urgent
// reply, whatever the label.
func Reply(label string, found map[string]int) models.StructuredReply {
	if found[SuicidalIdeation] > 0 {
		return urgentReply
	}
	if label != models.LabelDepressed {
		return genericReply
	}

	parts := []string{depressedIntro}
	for _, s := range symptomSentences {
		if found[s.key] > 0 {
			parts = append(parts, s.sentence)
		}
	}
	return models.StructuredReply{
		ImmediateResponse: strings.Join(parts, "\n"),
		FollowUpQuestion:  "كيف تؤثر هذه المشاعر على حياتك اليومية؟",
		SuggestedAction:   "قد يكون من المفيد التحدث مع أخصائي صحة نفسية",
	}
}
