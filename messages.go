package bolock

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys are the English texts. Arguments are pre-formatted strings so
// the printer does not apply locale number formatting to identities.
const (
	msgDeleted = "You cannot save the changes to '%[1]s', as another user has deleted the record.\nObject: %[2]s"

	msgEditConflict = "You cannot edit '%[1]s', as another user has edited this record.\n" +
		"User: %[3]s\nMachine: %[4]s\nUpdated: %[5]s\nObject: %[2]s"

	msgPersistConflict = "You cannot save the changes to '%[1]s', as another user has edited this record.\n" +
		"User: %[3]s\nMachine: %[4]s\nUpdated: %[5]s\nObject: %[2]s"

	msgLockConflict = "You cannot begin edits on '%[1]s', as another user has started edits and locked this record.\n" +
		"User: %[3]s\nMachine: %[4]s\nLocked: %[5]s\nObject: %[2]s"

	msgLockExpired = "The lock on '%[1]s' has a duration of %[4]s and has been exceeded.\nLocked: %[3]s\nObject: %[2]s"
)

func init() {
	for _, key := range []string{msgDeleted, msgEditConflict, msgPersistConflict, msgLockConflict, msgLockExpired} {
		_ = message.SetString(language.English, key, key)
	}
	german := map[string]string{
		msgDeleted: "Die Änderungen an '%[1]s' können nicht gespeichert werden, da ein anderer Benutzer den Datensatz gelöscht hat.\nObjekt: %[2]s",
		msgEditConflict: "'%[1]s' kann nicht bearbeitet werden, da ein anderer Benutzer diesen Datensatz geändert hat.\n" +
			"Benutzer: %[3]s\nRechner: %[4]s\nGeändert: %[5]s\nObjekt: %[2]s",
		msgPersistConflict: "Die Änderungen an '%[1]s' können nicht gespeichert werden, da ein anderer Benutzer diesen Datensatz geändert hat.\n" +
			"Benutzer: %[3]s\nRechner: %[4]s\nGeändert: %[5]s\nObjekt: %[2]s",
		msgLockConflict: "'%[1]s' kann nicht bearbeitet werden, da ein anderer Benutzer den Datensatz gesperrt hat.\n" +
			"Benutzer: %[3]s\nRechner: %[4]s\nGesperrt: %[5]s\nObjekt: %[2]s",
		msgLockExpired: "Die Sperre auf '%[1]s' mit einer Dauer von %[4]s ist abgelaufen.\nGesperrt: %[3]s\nObjekt: %[2]s",
	}
	for key, msg := range german {
		_ = message.SetString(language.German, key, msg)
	}
}

// UserMessage renders a conflict for display to an end user in the given
// language. Errors that are not conflicts are returned as err.Error().
func UserMessage(err error, tag language.Tag) string {
	p := message.NewPrinter(tag)
	var (
		deleted *RecordDeletedError
		edit    *EditConflictError
		persist *PersistConflictError
		lock    *LockConflictError
		expired *LockExpiredError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &deleted):
		return p.Sprintf(msgDeleted, deleted.class, deleted.id.String())
	case errors.As(err, &edit):
		return p.Sprintf(msgEditConflict, edit.class, edit.id.String(), edit.Editor.User, edit.Editor.Machine, formatTime(edit.Editor))
	case errors.As(err, &persist):
		return p.Sprintf(msgPersistConflict, persist.class, persist.id.String(), persist.Editor.User, persist.Editor.Machine, formatTime(persist.Editor))
	case errors.As(err, &lock):
		return p.Sprintf(msgLockConflict, lock.class, lock.id.String(), lock.Holder.User, lock.Holder.Machine, formatTime(lock.Holder))
	case errors.As(err, &expired):
		return p.Sprintf(msgLockExpired, expired.class, expired.id.String(), expired.LockedAt.Format(timeLayout), expired.Duration.String())
	default:
		return err.Error()
	}
}

func formatTime(e Editor) string {
	if e.Time.IsZero() {
		return ""
	}
	return e.Time.Format(timeLayout)
}
