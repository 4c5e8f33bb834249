package catalog

// Sites not included in the Sherlock database.
const extraSitesJSON = `{
  "Pornhub": {
    "errorType": "status_code",
    "url": "https://www.pornhub.com/users/{}",
    "urlMain": "https://www.pornhub.com/",
    "isNSFW": true
  },
  "NAVER": {
    "errorType": "status_code",
    "url": "https://blog.naver.com/{}",
    "urlMain": "https://www.naver.com/"
  }
}`

// Services probed when the identifier is an email address.
const emailServicesJSON = `{
  "Gravatar": {
    "errorType": "message",
    "errorMsg": "User not found",
    "url": "https://en.gravatar.com/{}.json",
    "urlMain": "https://gravatar.com"
  },
  "DuckDuckGo": {
    "errorType": "status_code",
    "url": "https://duckduckgo.com/?q={}&format=json",
    "urlMain": "https://duckduckgo.com"
  },
  "HaveIBeenPwned": {
    "errorType": "status_code",
    "url": "https://haveibeenpwned.com/api/v3/breachedaccount/{}",
    "urlMain": "https://haveibeenpwned.com"
  }
}`

func Extra() []RawEntry {
	return mustParse(extraSitesJSON)
}

func EmailServices() []RawEntry {
	return mustParse(emailServicesJSON)
}

func mustParse(doc string) []RawEntry {
	entries, err := Parse([]byte(doc))
	if err != nil {
		panic(err)
	}
	return entries
}
