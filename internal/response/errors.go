package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrAttemptNotOwned ErrCode = "ATTEMPT_NOT_OWNED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrAttemptNotFound  ErrCode = "ATTEMPT_NOT_FOUND"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_FOUND"
	ErrSectionNotFound  ErrCode = "SECTION_NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotYetOpen   ErrCode = "EXAM_NOT_YET_OPEN"
	ErrExamWindowClosed ErrCode = "EXAM_WINDOW_CLOSED"
	ErrSectionLocked    ErrCode = "SECTION_LOCKED"
	ErrSectionNotActive ErrCode = "SECTION_NOT_ACTIVE"
	ErrAttemptClosed    ErrCode = "ATTEMPT_CLOSED"
	ErrAttemptBusy      ErrCode = "ATTEMPT_BUSY"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrStorageUnavailable ErrCode = "STORAGE_UNAVAILABLE"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrAttemptNotOwned:
		return "Sesi ujian ini bukan milik Anda."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidAnswer:
		return "Format jawaban tidak sesuai dengan jenis soal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrAttemptNotFound:
		return "Sesi ujian tidak ditemukan."
	case ErrQuestionNotFound:
		return "Soal tidak ditemukan pada ujian ini."
	case ErrSectionNotFound:
		return "Bagian tidak ditemukan pada ujian ini."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotYetOpen:
		return "Ujian belum dibuka."
	case ErrExamWindowClosed:
		return "Waktu pelaksanaan ujian telah berakhir."
	case ErrSectionLocked:
		return "Bagian ini sudah dikunci. Muat ulang halaman ujian."
	case ErrSectionNotActive:
		return "Bagian ini belum aktif."
	case ErrAttemptClosed:
		return "Ujian sudah dikumpulkan dan tidak dapat diubah."
	case ErrAttemptBusy:
		return "Permintaan lain sedang diproses. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrStorageUnavailable:
		return "Penyimpanan sedang tidak tersedia. Jawaban belum tersimpan, silakan coba lagi."
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

// Retryable reports whether a request that failed with code may succeed when
// sent again unchanged.
func (code ErrCode) Retryable() bool {
	switch code {
	case ErrAttemptBusy, ErrRateLimitExceeded, ErrStorageUnavailable:
		return true
	}
	return false
}
