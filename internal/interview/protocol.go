// Package interview generates Arabic interview-style replies with an LLM,
// walking each user through a fixed sequence of interview stages.
package interview

// Stage is one phase of the interview.
type Stage struct {
	Name         string
	Guidance     string
	MaxQuestions int
}

// Stages are visited in order; the last one is never left.
var Stages = []Stage{
	{Name: "البداية", Guidance: "ابدأ بتحية تعاطفية واشرح الغرض من المحادثة", MaxQuestions: 1},
	{Name: "التقييم_الاولي", Guidance: "اسأل عن المزاج العام، نمط النوم، الشهية، ومستويات الطاقة", MaxQuestions: 3},
	{Name: "الاستكشاف_العاطفي", Guidance: "استكشاف أعمق للحالة العاطفية والمحفزات النفسية", MaxQuestions: 4},
	{Name: "الآليات_التكيفية", Guidance: "مناقشة آليات التعامل الحالية والدعم الاجتماعي", MaxQuestions: 2},
	{Name: "الختام", Guidance: "تقديم تطمينات واقتراح خطوات تالية", MaxQuestions: 1},
}

// Rules are given to the model with every prompt.
var Rules = []string{
	"استخدم أسئلة مفتوحة النهاية",
	"حافظ على نبرة محايدة ولكن تعاطفية",
	"تجنب المصطلحات الطبية المعقدة",
	"اعترف بالمشاعر واصرح بها",
	"أعد الصياغة للتأكد من الفهم",
	"تقدم خلال المراحل بشكل تدريجي",
	"استخدم لغة عربية بسيطة وواضحة",
	"ركز على الجوانب الثقافية العربية",
}

// ExampleQuestions may be reused by the model when they fit.
var ExampleQuestions = []string{
	"هل يمكنك أن تصف لي شعورك بالتفصيل؟",
	"كيف أثر هذا الشعور على حياتك اليومية؟",
	"هل هناك مواقف محددة تزيد هذا الشعور؟",
	"ماذا تفعل عادةً لتتعامل مع هذه المشاعر؟",
	"هل لديك أشخاص تدعمك في هذه الأوقات؟",
}

const (
	systemPrompt = "أنت أخصائي نفسي عربي تجري مقابلة تشخيصية. استخدم لغة عربية بسيطة وتجنب المصطلحات المعقدة."

	// FallbackReply is returned when generation fails or yields nothing usable.
	FallbackReply = "عذرًا، حدث خطأ تقني. هل يمكنك إعادة صياغة سؤالك؟"
)
