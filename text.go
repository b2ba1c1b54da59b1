package main

var (
	ContactSuccess = `Thank you for reaching out. I'll get back to you within 24 hours.`

	PrivacyPolicy = []string{
		`This site counts page views so I can see which parts of it are useful.
		Your IP address is never stored: it is combined with a secret salt and hashed,
		and only the first 16 characters of that hash are kept alongside your browser's user agent and the page you opened.`,
		`If your browser sends a Do Not Track or Global Privacy Control signal, no visit is recorded at all.`,
		`Messages sent through the contact form are stored so I can reply to them,
		and are deleted once the conversation is over.`,
		`The only cookies set are your colour theme choice and, for administrators, a login session.`,
	}
)
