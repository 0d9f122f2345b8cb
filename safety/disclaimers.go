package safety

import "strings"

// Disclaimer texts appended to flagged replies.
const (
	disclaimerGeneral = `**Important Disclaimer:**
This advice is for general informational and educational purposes only. It is not a substitute for professional medical advice, diagnosis, or treatment. Always seek the advice of qualified health professionals with questions regarding your child's health or development.`

	disclaimerMedical = `**Medical Disclaimer:**
The information provided is not medical advice and should not be used for diagnosing or treating health conditions. If your child is experiencing medical symptoms or you have concerns about medications, please consult a qualified healthcare provider immediately.`

	disclaimerEmergency = `**EMERGENCY NOTICE**

If your child is in immediate danger or experiencing a medical emergency:
- Call 911 or your local emergency services immediately
- Contact your local crisis hotline
- Go to the nearest emergency room

This system cannot provide emergency assistance.`

	disclaimerDevelopmental = `**Developmental Concerns Disclaimer:**
While I can provide general guidance about child development, significant developmental delays or concerns require professional evaluation. Please consult a pediatrician or developmental specialist if your child is not meeting expected milestones or you notice regression in previously acquired skills. Early intervention can make a significant difference.`

	disclaimerReferral = `**Professional Referral Recommended:**
Based on the nature of your concern, I strongly recommend consulting a pediatrician, child psychologist or licensed therapist. These professionals can provide comprehensive evaluation, evidence-based treatment plans and ongoing support. This system provides general guidance only and cannot replace professional clinical evaluation.`
)

// DisclaimersFor returns the disclaimer texts matching the detected flags.
// The general disclaimer always leads when any flag is present.
func DisclaimersFor(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	has := func(f string) bool {
		for _, x := range flags {
			if x == f {
				return true
			}
		}
		return false
	}

	disclaimers := []string{disclaimerGeneral}
	if has(FlagEmergency) || has(FlagHarm) {
		disclaimers = append(disclaimers, disclaimerEmergency)
	}
	if has(FlagMedicalAdvice) || has(FlagMedical) {
		disclaimers = append(disclaimers, disclaimerMedical)
	}
	if has(FlagDevelopmental) {
		disclaimers = append(disclaimers, disclaimerDevelopmental)
	}
	if has(FlagHarm) || has(FlagMedicalAdvice) {
		disclaimers = append(disclaimers, disclaimerReferral)
	}
	return disclaimers
}

// ApplyDisclaimers appends the matching disclaimers after the content,
// separated by horizontal rules. Unflagged content is returned unchanged.
func ApplyDisclaimers(content string, flags []string) string {
	disclaimers := DisclaimersFor(flags)
	if len(disclaimers) == 0 {
		return content
	}
	return content + "\n\n---\n\n" + strings.Join(disclaimers, "\n\n---\n\n")
}
