// Package symptoms detects depression symptoms in Arabic messages and turns a
// classification into the chatbot's rule-based reply.
package symptoms

// Symptom category keys.
const (
	LossOfInterest     = "loss_of_interest"
	DepressedMood      = "depressed_mood"
	SleepProblems      = "sleep_problems"
	LowEnergy          = "low_energy"
	AppetiteProblems   = "appetite_problems"
	Worthlessness      = "worthlessness"
	PoorConcentration  = "poor_concentration"
	Restlessness       = "restlessness"
	SuicidalIdeation   = "suicidal_ideation"
	Irritability       = "irritability"
	SexualProblems     = "sexual_problems"
	PsychomotorSlowing = "psychomotor_slowing"
	ShortReplies       = "short_replies"
	MonotoneVoice      = "monotone_voice"
)

// Category is one symptom with the Arabic keywords and phrases that signal it.
type Category struct {
	Key      string
	Arabic   string
	Keywords []string
}

// Categories lists every symptom category in reporting order.
var Categories = []Category{
	{Key: LossOfInterest, Arabic: "عدم الاهتمام", Keywords: []string{
		"لا اهتمام", "ملل", "لا أهتم", "فقدان الاهتمام", "عدم اهتمام",
	}},
	{Key: DepressedMood, Arabic: "الشعور بالاكتئاب", Keywords: []string{
		"حزين", "اكتئاب", "بائس", "كئيب", "تعيس", "حزن",
	}},
	{Key: SleepProblems, Arabic: "مشاكل النوم", Keywords: []string{
		"أرق", "لا أنام", "نوم متقطع", "صعوبة النوم", "أستيقظ ليلا", "نوم سيء",
		"مشاكل في النوم", "أعاني من النوم",
	}},
	{Key: LowEnergy, Arabic: "طاقة منخفضة", Keywords: []string{
		"إرهاق", "تعب", "لا طاقة", "إعياء", "مرهق", "خمول",
		"طاقتي منخفضة", "اشعر بالتعب",
	}},
	{Key: AppetiteProblems, Arabic: "مشاكل في الشهية", Keywords: []string{
		"فقدان شهية", "لا أريد أكل", "شهية زائدة", "أكل كثير", "أكل قليل", "اضطراب الشهية",
		"مشاكل في الشهية", "لا اشتهي الاكل", "شهيتي تغيرت",
	}},
	{Key: Worthlessness, Arabic: "الشعور بعدم القيمة", Keywords: []string{
		"عديم القيمة", "لا فائدة", "بلا قيمة", "لا يستحق", "تافه", "شعور بعدم الجدوى",
		"لا اشعر بقيمتي", "اشعر بعدم القيمة",
	}},
	{Key: PoorConcentration, Arabic: "ضعف التركيز", Keywords: []string{
		"لا أركز", "تشتت انتباه", "ضعف تركيز", "نسيان", "شرود", "صعوبة التركيز",
		"لا استطيع التركيز",
	}},
	{Key: Restlessness, Arabic: "التململ أو البطء", Keywords: []string{
		"تململ", "بطء حركة", "لا أستقر", "حركة زائدة", "قلق حركي",
	}},
	{Key: SuicidalIdeation, Arabic: "أفكار انتحارية", Keywords: []string{
		"أريد الموت", "انتحار", "لا أريد العيش", "إنهاء حياتي", "الموت أفضل", "تفكير في الموت",
	}},
	{Key: Irritability, Arabic: "الانفعال", Keywords: []string{
		"غضب سريع", "انفعال", "عصبية", "صراخ", "غضب", "تهيج",
	}},
	{Key: SexualProblems, Arabic: "مشاكل جنسية", Keywords: []string{
		"ضعف جنسي", "لا رغبة جنسية", "برود جنسي", "اضطراب جنسي",
	}},
	{Key: PsychomotorSlowing, Arabic: "تباطؤ الحركات", Keywords: []string{
		"حركة بطيئة", "كسل حركي", "بطء في الحركة", "خمول حركي",
	}},
	{Key: ShortReplies, Arabic: "الرد بجمل قصيرة", Keywords: []string{
		"إجابات قصيرة", "لا أحب الكلام", "ردود مختصرة", "تكلم قليل",
	}},
	{Key: MonotoneVoice, Arabic: "نبرة صوت رتيبة", Keywords: []string{
		"صوت ممل", "لا تعابير صوتية", "صوت رتيب", "نبرة واحدة",
	}},
}

// PositivePhrases mark a message as not depressed regardless of the classifier.
var PositivePhrases = []string{
	"بخير", "أنا بخير", "تمام", "لا أشعر بالحزن", "سعيد", "مرتاح",
}

// Keys returns the category keys in reporting order.
func Keys() []string {
	keys := make([]string, len(Categories))
	for i, c := range Categories {
		keys[i] = c.Key
	}
	return keys
}
