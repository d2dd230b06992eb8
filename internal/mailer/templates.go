package mailer

import (
	"fmt"
	"html"
)

func verificationMessage(toEmail, code, username string) Message {
	name := html.EscapeString(username)
	return Message{
		To:      toEmail,
		ToName:  username,
		Subject: "Verify Your Kinna Account",
		Text: fmt.Sprintf(`Welcome to Kinna!

Hi %s,

Thank you for joining Kinna, the social network for book lovers.
Please use the following code to verify your email address:

%s

This code will expire in 15 minutes.

If you didn't create an account with Kinna, you can safely ignore this email.
`, username, code),
		HTML: fmt.Sprintf(`<h1>Welcome to Kinna!</h1>
<p>Hi %s,</p>
<p>Thank you for joining Kinna, the social network for book lovers. Please use the following code to verify your email address:</p>
<p style="font-size:32px;font-weight:bold;letter-spacing:8px;">%s</p>
<p><strong>This code will expire in 15 minutes.</strong></p>
<p>If you didn't create an account with Kinna, you can safely ignore this email.</p>`, name, code),
	}
}

func welcomeMessage(toEmail, username string) Message {
	name := html.EscapeString(username)
	return Message{
		To:      toEmail,
		ToName:  username,
		Subject: "Welcome to Kinna!",
		Text: fmt.Sprintf(`Welcome to Kinna, %s!

Your email has been verified and your account is ready.
Start by following other readers, joining book clubs and sharing what you're reading.

Happy reading!
The Kinna Team
`, username),
		HTML: fmt.Sprintf(`<h1>Welcome to Kinna, %s!</h1>
<p>Your email has been verified and your account is ready.</p>
<p>Start by following other readers, joining book clubs and sharing what you're reading.</p>
<p>Happy reading!<br>The Kinna Team</p>`, name),
	}
}
