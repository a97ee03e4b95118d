package domain

// Localization keys surfaced to the user.
const (
	MsgNamePrefix         = "error.namePrefix"
	MsgFirstName          = "error.firstName"
	MsgLastName           = "error.lastName"
	MsgDateOfBirth        = "error.dateOfBirth"
	MsgEmail              = "error.email"
	MsgEmailInvalid       = "error.emailInvalid"
	MsgPassword           = "error.password"
	MsgPasswordLength     = "error.passwordLength"
	MsgAgeRestriction     = "error.ageRestriction"
	MsgCommunication      = "error.termsAndConditions"
	MsgPrivacyPolicy      = "error.privacyPolicy"
	MsgRequiredFields     = "error.requiredFields"
	MsgHealthProvider     = "error.healthProvider"
	MsgSelectOptions      = "error.selectOptions"
	MsgTooManyOptions     = "error.tooManyOptions"
	MsgSelectPrograms     = "error.selectPrograms"
	MsgAgreeToTerms       = "error.agreeToTerms"
	MsgPayment            = "error.payment"
	MsgPaymentIncomplete  = "error.paymentIncomplete"
	MsgInvoice            = "error.invoice"
	MsgUserCreation       = "error.userCreation"
	MsgUserExistsNoLocal  = "error.userExistsNoLocal"
	MsgFinalize           = "error.finalize"
	MsgTrialCompletion    = "error.trialCompletion"
	MsgNetwork            = "error.network"
	MsgUnknown            = "error.unknown"
	MsgVerificationSend   = "error.verificationSend"
	MsgVerificationCancel = "error.verificationCanceled"
	MsgSepaProcessing     = "success.sepaProcessing"
	MsgPaymentProcessing  = "payment.processing"
	MsgPayNow             = "payment.payNow"
	MsgBuyNow             = "checkout.buyNow"
	MsgTryUnit            = "checkout.tryUnit"
	MsgAccessOne          = "summary.access.one"
	MsgAccessTwo          = "summary.access.two"
	MsgAccessNone         = "summary.access.none"
	MsgMonths             = "summary.months"
	MsgVerifySent         = "verify.sent"
	MsgVerifyResent       = "verify.resent"
	MsgVerifyResend       = "verify.resend"
	MsgVerifyCountdown    = "verify.resendCountdown"
	MsgClosePayment       = "button.closePayment"
)
