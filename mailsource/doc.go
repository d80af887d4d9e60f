// Package mailsource reads emails from local files into core.EmailContent.
//
// Two formats are supported: JSON, either one array or a stream of
// objects in the shape of core.EmailContent, and mbox archives. Attachments
// in mbox messages contribute their text when they are text/*; any other
// attachment is represented by a placeholder naming it, since binary
// formats are not extracted.
package mailsource
