package runreq

// Scope is a tagged union keyed by collector family. Exactly one variant is
// non-nil after a successful parse when scope was supplied; all nil means the
// family runs with its documented defaults
type Scope struct {
	Localfs  *LocalfsScope
	Imap     *ImapScope
	Messages *MessagesScope
	Contacts *ContactsScope
}

// IsZero reports whether no variant is set
func (s Scope) IsZero() bool {
	return s.Localfs == nil && s.Imap == nil && s.Messages == nil && s.Contacts == nil
}

// LocalfsScope narrows a filesystem run
type LocalfsScope struct {
	// Paths are the watch roots; at least one required when scope is given
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`

	// Globs preselect candidate files before filter rules apply
	Globs []string `json:"globs" validate:"omitempty,dive,required"`

	FollowSymlinks bool `json:"follow_symlinks"`

	// MaxFileBytes caps item size; larger files are skipped with a warning
	MaxFileBytes int64 `json:"max_file_bytes" validate:"omitempty,gt=0"`

	// Disposal of a submitted source file: move into ArchiveDir, or delete.
	// Mutually exclusive, checked at parse
	ArchiveDir        string `json:"archive_dir"`
	DeleteAfterSubmit bool   `json:"delete_after_submit"`
}

// ImapScope narrows a mailbox run
type ImapScope struct {
	Host     string   `json:"host" validate:"required,hostname|ip"`
	Port     int      `json:"port" validate:"omitempty,min=1,max=65535"`
	Username string   `json:"username" validate:"required"`
	Folders  []string `json:"folders" validate:"omitempty,dive,required"`

	// IncludeAttachments uploads message attachments as file payloads
	IncludeAttachments bool `json:"include_attachments"`
}

// MessagesScope narrows a chat-export run
type MessagesScope struct {
	// ExportPath is the chat export file (JSONL, one message per line)
	ExportPath string `json:"export_path" validate:"required"`

	// ChatIDs restricts to the named conversations
	ChatIDs []string `json:"chat_ids" validate:"omitempty,dive,required"`

	IncludeAttachments bool `json:"include_attachments"`
}

// ContactsScope narrows a contacts run
type ContactsScope struct {
	// Path is a directory of vCard files
	Path string `json:"path" validate:"required"`

	// Groups restricts to contacts carrying any of these group tags
	Groups []string `json:"groups" validate:"omitempty,dive,required"`
}
